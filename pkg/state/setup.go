package state

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/mbrevik/sundial/pkg/errors"
	"github.com/mbrevik/sundial/pkg/logging"
)

// SetupLog persists which on_setup actions have already executed, so that
// setup blocks run at most once across process restarts. Actions are
// identified by a caller-provided fingerprint of their configuration: a
// changed setup action is a new action.
type SetupLog struct {
	path string
	done map[string][]string
}

// LoadSetupLog reads the setup record at path, which need not exist yet
func LoadSetupLog(path string) (*SetupLog, error) {
	s := &SetupLog{
		path: path,
		done: make(map[string][]string),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrStateLoad,
			"could not read setup record %q", path)
	}
	if err := yaml.Unmarshal(data, &s.done); err != nil {
		return nil, errors.Wrapf(err, errors.ErrStateLoad,
			"could not parse setup record %q", path)
	}
	if s.done == nil {
		s.done = make(map[string][]string)
	}
	return s, nil
}

// IsNew reports whether the fingerprinted action has not executed before,
// recording and persisting it as executed when it is new.
func (s *SetupLog) IsNew(module string, fingerprint string) (bool, error) {
	if fingerprint == "" {
		return false, nil
	}
	for _, done := range s.done[module] {
		if done == fingerprint {
			return false, nil
		}
	}
	s.done[module] = append(s.done[module], fingerprint)
	return true, s.write()
}

// Contains reports whether the fingerprinted action has executed
// before, without recording anything. Dry runs peek with this instead
// of IsNew.
func (s *SetupLog) Contains(module string, fingerprint string) bool {
	for _, done := range s.done[module] {
		if done == fingerprint {
			return true
		}
	}
	return false
}

// Reset forgets every executed setup action for a module
func (s *SetupLog) Reset(module string) error {
	logger := logging.GetLogger("state")

	if _, ok := s.done[module]; !ok {
		logger.Warn().Str("module", module).Msg("No recorded setup actions to reset")
		return nil
	}

	delete(s.done, module)
	logger.Info().Str("module", module).Msg("Reset setup actions")
	return s.write()
}

func (s *SetupLog) write() error {
	data, err := yaml.Marshal(s.done)
	if err != nil {
		return errors.Wrap(err, errors.ErrStateWrite, "could not encode setup record")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return errors.Wrap(err, errors.ErrStateWrite, "could not create state directory")
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return errors.Wrapf(err, errors.ErrStateWrite,
			"could not write setup record %q", s.path)
	}
	return nil
}
