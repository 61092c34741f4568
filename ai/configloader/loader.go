package configloader

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Loader reads YAML files (topology, anchor templates) relative to a base directory.
type Loader struct {
	baseDir string
}

// NewLoader creates a new configuration loader.
func NewLoader(baseDir string) *Loader {
	return &Loader{
		baseDir: baseDir,
	}
}

// Load loads a single YAML file and unmarshals it into target.
// Absolute paths bypass the base directory.
func (l *Loader) Load(path string, target any) error {
	data, err := l.ReadFileWithFallback(path)
	if err != nil {
		return errors.Wrapf(err, "read file %s", path)
	}

	if err := yaml.Unmarshal(data, target); err != nil {
		return errors.Wrapf(err, "unmarshal YAML %s", path)
	}

	return nil
}

// ReadFileWithFallback tries to read file from path relative to baseDir,
// then falls back to executable directory for production builds.
func (l *Loader) ReadFileWithFallback(path string) ([]byte, error) {
	if filepath.IsAbs(path) {
		return os.ReadFile(path)
	}

	data, err := os.ReadFile(filepath.Join(l.baseDir, path))
	if err == nil {
		return data, nil
	}

	execPath, execErr := os.Executable()
	if execErr != nil {
		return nil, err
	}

	execDir := filepath.Dir(execPath)
	data, execErr = os.ReadFile(filepath.Join(execDir, l.baseDir, path))
	if execErr != nil {
		return nil, err
	}
	return data, nil
}
