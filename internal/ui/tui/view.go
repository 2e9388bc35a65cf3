package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// styleFunc is a single-string styling function.
type styleFunc func(string) string

// sf wraps a lipgloss.Style into a styleFunc.
func sf(s lipgloss.Style) styleFunc {
	return func(str string) string { return s.Render(str) }
}

func renderView(m Model) string {
	var b strings.Builder

	renderHeader(&b, m)
	renderProgressBar(&b, m)
	renderTasks(&b, m)
	if len(m.Log) > 0 {
		renderLog(&b, m)
	}
	renderFooter(&b, m)

	return b.String()
}

func renderHeader(b *strings.Builder, m Model) {
	title := fmt.Sprintf("k3sform: %s", m.Project)
	if m.Location != "" {
		title += fmt.Sprintf(" (%s)", m.Location)
	}
	b.WriteString(titleStyle.Render(title))

	status := " "
	switch {
	case m.Done && m.Err != nil:
		status += failedStyle.Render(fmt.Sprintf("Error: %v", firstLine(m.Err.Error())))
	case m.Done:
		status += readyStyle.Render("Applied")
	default:
		status += activeStyle.Render(currentSpinner(m.SpinnerFrame)+" ") + warningStyle.Render("Applying")
	}
	b.WriteString(status)
	b.WriteString("\n")
}

func renderProgressBar(b *strings.Builder, m Model) {
	progress := calculateProgress(m)
	barWidth := 40
	if m.Width > 0 && m.Width < 80 {
		barWidth = max(m.Width-30, 10)
	}
	filled := min(int(float64(barWidth)*progress), barWidth)

	bar := progressBarFull.Render(strings.Repeat("█", filled)) +
		progressBarEmpty.Render(strings.Repeat("░", barWidth-filled))

	eta := ""
	if m.EstimatedRemaining > 0 && !m.Done {
		eta = fmt.Sprintf(" ETA %s", formatDuration(m.EstimatedRemaining))
	}
	if m.PerformanceScale != 0 && m.PerformanceScale != 1.0 {
		eta += fmt.Sprintf("  speed x%.2f", m.PerformanceScale)
	}
	fmt.Fprintf(b, "  %s %d%%%s\n", bar, int(progress*100), eta)
}

func renderTasks(b *strings.Builder, m Model) {
	b.WriteString(sectionStyle.Render("  Tasks"))
	b.WriteString("\n")

	for _, row := range m.Tasks {
		icon, style := taskIcon(row.State, m.SpinnerFrame)
		detail := ""
		switch row.State {
		case TaskRunning:
			detail = formatDuration(time.Since(row.Started))
		case TaskSucceeded:
			detail = formatDuration(row.Duration)
			if row.Action != "" {
				detail += "  " + row.Action
			}
		case TaskFailed:
			detail = firstLine(row.Message)
		}
		fmt.Fprintf(b, "    %s %-34s %s\n", style(icon), style(row.Name), dimStyle.Render(detail))
	}
}

func renderLog(b *strings.Builder, m Model) {
	b.WriteString(sectionStyle.Render("  Log"))
	b.WriteString("\n")
	for _, line := range m.Log {
		fmt.Fprintf(b, "    %s\n", dimStyle.Render(firstLine(line)))
	}
}

func renderFooter(b *strings.Builder, m Model) {
	finished, total := m.Counts()
	parts := []string{
		fmt.Sprintf("elapsed: %s", formatDuration(time.Since(m.StartTime))),
		fmt.Sprintf("tasks: %d/%d", finished, total),
	}
	b.WriteString(footerStyle.Render(fmt.Sprintf("  %s  |  q: quit", strings.Join(parts, "  |  "))))
	b.WriteString("\n")
}

func taskIcon(state TaskState, frame int) (string, styleFunc) {
	if state == TaskRunning {
		return currentSpinner(frame), sf(activeStyle)
	}
	if m, ok := stateMarks[state]; ok {
		return m.mark, sf(m.style)
	}
	return pending, sf(dimStyle)
}

func currentSpinner(frame int) string {
	if frame < 0 {
		frame = -frame
	}
	return spinnerFrames[frame%len(spinnerFrames)]
}

func calculateProgress(m Model) float64 {
	if m.Done && m.Err == nil {
		return 1.0
	}
	finished, total := m.Counts()
	if total == 0 {
		return 0
	}
	return float64(finished) / float64(total)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
