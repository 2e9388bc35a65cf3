package outputs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dimo-network/k3sform/internal/config"
	"github.com/dimo-network/k3sform/internal/platform/s3"
	fixtures "github.com/dimo-network/k3sform/internal/testing"
)

func sample() *Outputs {
	return &Outputs{
		Project:      "k3s",
		RunID:        "6f1c1f3e-0d1a-4c55-9a4e-1f8b0c1d2e3f",
		AppliedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		InstanceName: "k3s-server",
		ServerID:     42,
		ExternalIP:   "203.0.113.5",
		InternalIP:   "10.0.1.2",
		ReservedIP:   "198.51.100.7",
		APIServer:    "https://203.0.113.5:6443",
		NodeNames:    []string{"k3s-server"},
		Releases:     map[string]string{"kafka": "installed"},
		Kubeconfig:   []byte(fixtures.Kubeconfig(6443)),
	}
}

func TestFileStore_SaveLoad(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dir := filepath.Join(t.TempDir(), ".k3sform")
	store := NewFileStore(dir)
	want := sample()
	require.NoError(t, store.Save(ctx, want))

	info, err := os.Stat(store.KubeconfigPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	doc, err := os.ReadFile(store.Location())
	require.NoError(t, err)
	assert.NotContains(t, string(doc), "certificate-authority-data")

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFileStore_LoadMissing(t *testing.T) {
	t.Parallel()

	_, err := NewFileStore(t.TempDir()).Load(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_Delete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := NewFileStore(t.TempDir())
	require.NoError(t, store.Save(ctx, sample()))
	require.NoError(t, store.Delete(ctx))
	require.NoError(t, store.Delete(ctx))

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

type memoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	buckets []string
}

func (m *memoryObjects) EnsureBucket(_ context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets = append(m.buckets, bucket)
	return nil
}

func (m *memoryObjects) PutObject(_ context.Context, bucket, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = data
	return nil
}

func (m *memoryObjects) GetObject(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", bucket, key, s3.ErrNotFound)
	}
	return data, nil
}

func (m *memoryObjects) DeleteObject(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, bucket+"/"+key)
	return nil
}

func TestS3Store(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	objects := &memoryObjects{objects: map[string][]byte{}}
	store := NewS3Store(objects, "dimo-state", "clusters/k3s")
	assert.Equal(t, "s3://dimo-state/clusters/k3s/outputs.yaml", store.Location())

	_, err := store.Load(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	want := sample()
	require.NoError(t, store.Save(ctx, want))
	assert.Contains(t, objects.objects, "dimo-state/clusters/k3s/kubeconfig")
	assert.Equal(t, []string{"dimo-state"}, objects.buckets)

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, store.Delete(ctx))
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpen(t *testing.T) {
	t.Parallel()

	cfg := fixtures.NewConfigBuilder().WithOutputsDir(t.TempDir()).Build()
	store, err := Open(context.Background(), cfg, config.Env{})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)
}
