// Package dotdir manages the .tracks/ and ~/.tracks directories that hold
// the config file, the default SQLite database, the rule file and the
// service log.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the tracks directory.
	dirName = ".tracks"

	// DatabaseFile is the default SQLite database name inside the directory.
	DatabaseFile = "tracks.sqlite"

	// RulesFile is the default rule group file name inside the directory.
	RulesFile = "rules.json"

	// LogFile receives the JSON service log written by serve.
	LogFile = "tracks.log"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the target absolute path to a .tracks/ directory.
// Order of precedence is as follows:
//  1. Provided override
//  2. Local ./.tracks/ dir
//  3. Home ~/.tracks/ dir, created when missing
func (m *Manager) Target(overrideDir string) (string, error) {
	var dir string

	switch {
	case overrideDir != "":
		dir = overrideDir

	case m.localDirExists():
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		dir = filepath.Join(cwd, dirName)

	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, dirName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating tracks directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

// Path resolves the target directory and joins name onto it.
func (m *Manager) Path(overrideDir, name string) (string, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// localDirExists checks whether a .tracks/ directory exists in the current
// working directory.
func (m *Manager) localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}

	info, err := os.Stat(filepath.Join(cwd, dirName))
	return err == nil && info.IsDir()
}
