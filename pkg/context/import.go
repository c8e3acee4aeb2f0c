package context

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mbrevik/sundial/pkg/errors"
	"github.com/mbrevik/sundial/pkg/logging"
)

// ImportFile merges context values from a YAML file into the store.
//
// With fromSection set, only that section is imported, placed under
// toSection (defaulting to fromSection). Setting toSection without
// fromSection is rejected: a rename with nothing named to import would
// silently drop a section.
func (s *Store) ImportFile(path string, fromSection string, toSection string) error {
	logger := logging.GetLogger("context")

	if toSection != "" && fromSection == "" {
		return errors.Newf(errors.ErrSectionImport,
			"to_section %q requires from_section to be set", toSection)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileNotFound,
			"could not read context file %q", path)
	}

	var decoded map[string]interface{}
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess,
			"could not parse context file %q", path)
	}
	imported := FromMap(decoded)

	if fromSection == "" {
		logger.Info().Str("path", path).Msg("Importing all context sections")
		s.Update(imported)
		return nil
	}

	section, ok := imported.Get(fromSection)
	if !ok {
		return errors.Newf(errors.ErrNotFound,
			"section %q not found in %q", fromSection, path)
	}

	if toSection == "" {
		toSection = fromSection
	}
	logger.Info().
		Str("path", path).
		Str("from", fromSection).
		Str("to", toSection).
		Msg("Importing context section")

	wrapped := New()
	wrapped.Set(toSection, section)
	s.Update(wrapped)
	return nil
}
