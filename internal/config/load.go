package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	tgerrors "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/errors"
)

// SupportedSchemaVersionConstraint is the schemaVersion major accepted by
// this engine.
const SupportedSchemaVersionConstraint = "v1"

// Load validates data against the embedded JSON schema, decodes it strictly,
// checks schemaVersion compatibility, applies defaults and finally runs the
// logical validation. filePathHint only appears in messages.
func Load(data []byte, filePathHint string) (*Config, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, tgerrors.NewConfigError("configuration content cannot be empty", nil)
	}

	if err := ValidateWithSchema(data); err != nil {
		return nil, tgerrors.NewConfigError(fmt.Sprintf("configuration '%s' failed schema validation", filePathHint), err)
	}

	var cfg Config
	if err := yamlUnmarshalStrict(data, &cfg); err != nil {
		return nil, tgerrors.NewConfigError(fmt.Sprintf("failed to parse configuration YAML '%s'", filePathHint), err)
	}
	cfg.FilePath = filePathHint

	if err := checkSchemaVersion(cfg.SchemaVersion, filePathHint); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if errs := ValidateConfig(&cfg); len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}
		combined := fmt.Sprintf("configuration '%s' has %d validation error(s):\n- %s",
			filePathHint, len(msgs), strings.Join(msgs, "\n- "))
		return nil, tgerrors.NewValidationError(combined, errs[0])
	}
	return &cfg, nil
}

// LoadFile reads and loads the configuration at path.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return nil, tgerrors.NewConfigError("configuration file path cannot be empty", nil)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, tgerrors.NewConfigError(fmt.Sprintf("failed to get absolute path for '%s'", path), err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, tgerrors.NewConfigError(fmt.Sprintf("failed to read configuration file '%s'", absPath), err)
	}
	return Load(data, absPath)
}

func checkSchemaVersion(version, hint string) error {
	if version == "" {
		return tgerrors.NewValidationError(fmt.Sprintf("configuration '%s' is missing required 'schemaVersion' field", hint), nil)
	}
	v := version
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return tgerrors.NewValidationError(fmt.Sprintf("configuration '%s' has invalid 'schemaVersion' format: '%s'", hint, version), nil)
	}
	if semver.Major(v) != SupportedSchemaVersionConstraint {
		return tgerrors.NewValidationError(
			fmt.Sprintf("configuration '%s' schemaVersion '%s' is not compatible with engine requirement '%s'",
				hint, version, SupportedSchemaVersionConstraint),
			nil,
		)
	}
	return nil
}

// yamlUnmarshalStrict rejects fields that Config does not define.
func yamlUnmarshalStrict(in []byte, out interface{}) error {
	decoder := yaml.NewDecoder(bytes.NewReader(in))
	decoder.KnownFields(true)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("YAML parsing error: %w", err)
	}
	return nil
}
