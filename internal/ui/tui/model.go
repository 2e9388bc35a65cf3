package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dimo-network/k3sform/internal/ui/benchmarks"
)

const maxLogLines = 5

// TaskRow is one line of the task list.
type TaskRow struct {
	Name     string
	State    TaskState
	Started  time.Time
	Duration time.Duration
	Message  string
	Action   string
}

// Model is the Bubble Tea model for the apply view.
type Model struct {
	Project  string
	Location string

	Tasks []TaskRow
	index map[string]int
	Log   []string

	// ETA
	EstimatedRemaining time.Duration
	PerformanceScale   float64
	StartTime          time.Time

	// Animation
	SpinnerFrame int

	// UI state
	Width  int
	Height int
	Err    error
	Done   bool
}

// NewApplyModel creates a model listing plan in execution order.
func NewApplyModel(project, location string, plan []string) Model {
	m := Model{
		Project:          project,
		Location:         location,
		StartTime:        time.Now(),
		PerformanceScale: 1.0,
		index:            make(map[string]int, len(plan)),
	}
	for i, name := range plan {
		m.Tasks = append(m.Tasks, TaskRow{Name: name})
		m.index[name] = i
	}
	m.EstimatedRemaining = benchmarks.TotalEstimate(plan)
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case TaskMsg:
		m.updateTask(msg)
		m.updateETA()

	case ReleaseMsg:
		if i, ok := m.index["release/"+msg.Release]; ok {
			m.Tasks[i].Action = msg.Action
		}

	case LogMsg:
		m.Log = append(m.Log, msg.Line)
		if len(m.Log) > maxLogLines {
			m.Log = m.Log[len(m.Log)-maxLogLines:]
		}

	case TickMsg:
		m.SpinnerFrame++
		m.updateETA()
		return m, tickCmd()

	case DoneMsg:
		m.Done = true
		m.Err = msg.Err
		m.EstimatedRemaining = 0
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) updateTask(msg TaskMsg) {
	i, ok := m.index[msg.Name]
	if !ok {
		// Tasks outside the plan are appended so nothing is hidden.
		i = len(m.Tasks)
		m.Tasks = append(m.Tasks, TaskRow{Name: msg.Name})
		m.index[msg.Name] = i
	}
	row := &m.Tasks[i]
	row.State = msg.State
	if msg.State == TaskRunning {
		row.Started = time.Now()
	}
	if msg.Duration > 0 {
		row.Duration = msg.Duration
	}
	if msg.Message != "" {
		row.Message = msg.Message
	}
}

func (m *Model) updateETA() {
	var pending []string
	var finished []benchmarks.Record
	running := map[string]time.Duration{}
	for _, row := range m.Tasks {
		switch row.State {
		case TaskPending:
			pending = append(pending, row.Name)
		case TaskRunning:
			running[row.Name] = time.Since(row.Started)
		case TaskSucceeded:
			finished = append(finished, benchmarks.Record{Task: row.Name, Duration: row.Duration})
		}
	}
	m.PerformanceScale = benchmarks.PerformanceScale(finished, running)
	m.EstimatedRemaining = benchmarks.EstimateRemaining(pending, running, m.PerformanceScale)
}

// Counts returns finished and total task counts.
func (m Model) Counts() (finished, total int) {
	for _, row := range m.Tasks {
		if row.State != TaskPending && row.State != TaskRunning {
			finished++
		}
	}
	return finished, len(m.Tasks)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

// View implements tea.Model.
func (m Model) View() string {
	return renderView(m)
}
