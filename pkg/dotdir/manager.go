// Package dotdir manages the .chunkstream/ and ~/.chunkstream directories.
//
// The directory holds config.toml and the state of the last chat session,
// persisted as a JSON file so "chunkstream chat --resume" can continue it.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the chunkstream directory.
	dirName = ".chunkstream"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the target absolute path to a .chunkstream/ directory.
// Order of precedence is as follows:
//  1. Provided override (created if missing)
//  2. Local ./.chunkstream/ dir
//  3. Home ~/.chunkstream/ dir
//  4. If none found, an empty string
func (m *Manager) Target(overrideDir string) (string, error) {
	if overrideDir != "" {
		if err := os.MkdirAll(overrideDir, 0o755); err != nil {
			return "", fmt.Errorf("creating chunkstream directory %s: %w", overrideDir, err)
		}
		return filepath.Abs(overrideDir)
	}

	if m.localDirExists() {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		return filepath.Join(cwd, dirName), nil
	}

	home, err := m.homeDir()
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(home); err == nil && info.IsDir() {
		return home, nil
	}

	return "", nil
}

// Init resolves the target directory like Target, but creates ~/.chunkstream/
// when no directory exists yet.
func (m *Manager) Init(overrideDir string) (string, error) {
	dir, err := m.Target(overrideDir)
	if err != nil || dir != "" {
		return dir, err
	}

	home, err := m.homeDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(home, 0o755); err != nil {
		return "", fmt.Errorf("creating chunkstream directory %s: %w", home, err)
	}

	return home, nil
}

func (m *Manager) homeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, dirName), nil
}

// localDirExists checks whether a .chunkstream/ directory exists in the
// current working directory.
func (m *Manager) localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}

	info, err := os.Stat(filepath.Join(cwd, dirName))
	return err == nil && info.IsDir()
}
