package outputs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// File names inside the outputs directory.
const (
	DocumentFile   = "outputs.yaml"
	KubeconfigFile = "kubeconfig"
)

// FileStore keeps outputs in a local directory.
type FileStore struct {
	dir string
}

// NewFileStore returns a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Location returns the document path.
func (s *FileStore) Location() string { return filepath.Join(s.dir, DocumentFile) }

// KubeconfigPath returns where the kubeconfig is written.
func (s *FileStore) KubeconfigPath() string { return filepath.Join(s.dir, KubeconfigFile) }

// Save writes the document and, when present, the kubeconfig with mode
// 0600.
func (s *FileStore) Save(_ context.Context, o *Outputs) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create outputs directory: %w", err)
	}
	data, err := Marshal(o)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.Location(), data, 0o600); err != nil {
		return err
	}
	if len(o.Kubeconfig) > 0 {
		if err := writeFileAtomic(s.KubeconfigPath(), o.Kubeconfig, 0o600); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the document and the kubeconfig beside it.
func (s *FileStore) Load(_ context.Context) (*Outputs, error) {
	data, err := os.ReadFile(s.Location())
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", s.Location(), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read outputs: %w", err)
	}
	o, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}
	kubeconfig, err := os.ReadFile(s.KubeconfigPath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read kubeconfig: %w", err)
	}
	o.Kubeconfig = kubeconfig
	return o, nil
}

// Delete removes both files.
func (s *FileStore) Delete(_ context.Context) error {
	for _, p := range []string{s.Location(), s.KubeconfigPath()} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
