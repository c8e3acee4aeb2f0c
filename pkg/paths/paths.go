// Package paths provides centralized path handling for sundial.
// It implements XDG Base Directory specification compliance and
// provides a consistent API for all path operations in the codebase.
package paths

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/mbrevik/sundial/pkg/errors"
)

// Environment variable names
const (
	// EnvDataDir overrides the XDG data directory for sundial
	EnvDataDir = "SUNDIAL_DATA_DIR"

	// EnvConfigDir overrides the XDG config directory for sundial
	EnvConfigDir = "SUNDIAL_CONFIG_DIR"
)

// Directory and file names under the sundial data directory.
// These are not user-configurable: state written by one version must be
// found again by the next.
const (
	AppDirName = "sundial"

	// CompiledDir holds compiled template output when no explicit target
	// is configured. Targets must survive restarts, so this is a real
	// data directory and never a temp dir.
	CompiledDirName = "compiled"

	// CreatedFilesName records files produced by module actions
	CreatedFilesName = "created_files.yml"

	// SetupLogName records on_setup actions which have already run
	SetupLogName = "setup.yml"

	// OptionsFileName is the global options file inside the config directory
	OptionsFileName = "sundial.toml"

	// ConfigFileName is the module configuration tree inside the config
	// directory
	ConfigFileName = "sundial.yml"
)

// Paths provides centralized path management for sundial
type Paths interface {
	ConfigDir() string
	DataDir() string
	CompiledDir() string
	CreatedFilesPath() string
	SetupLogPath() string
	OptionsFilePath() string
	ConfigFilePath() string
}

type paths struct {
	configDir string
	dataDir   string
}

// New creates a new Paths instance. If configDir is empty it is resolved
// from SUNDIAL_CONFIG_DIR or the XDG config home.
func New(configDir string) (Paths, error) {
	p := &paths{}

	if configDir == "" {
		configDir = os.Getenv(EnvConfigDir)
	}
	if configDir == "" {
		configDir = filepath.Join(xdg.ConfigHome, AppDirName)
	}
	absConfig, err := filepath.Abs(ExpandHome(configDir))
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileAccess,
			"failed to resolve config directory %q", configDir)
	}
	p.configDir = absConfig

	dataDir := os.Getenv(EnvDataDir)
	if dataDir == "" {
		dataDir = filepath.Join(xdg.DataHome, AppDirName)
	}
	p.dataDir = ExpandHome(dataDir)

	return p, nil
}

func (p *paths) ConfigDir() string {
	return p.configDir
}

func (p *paths) DataDir() string {
	return p.dataDir
}

func (p *paths) CompiledDir() string {
	return filepath.Join(p.dataDir, CompiledDirName)
}

func (p *paths) CreatedFilesPath() string {
	return filepath.Join(p.dataDir, CreatedFilesName)
}

func (p *paths) SetupLogPath() string {
	return filepath.Join(p.dataDir, SetupLogName)
}

func (p *paths) OptionsFilePath() string {
	return filepath.Join(p.configDir, OptionsFileName)
}

func (p *paths) ConfigFilePath() string {
	return filepath.Join(p.configDir, ConfigFileName)
}

// ExpandHome expands a leading ~ or ~/ to the user home directory
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// Resolve returns an absolute path, anchoring relative paths at dir.
// The ~ prefix is expanded first.
func Resolve(path string, dir string) string {
	path = ExpandHome(path)
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(dir, path)
}
