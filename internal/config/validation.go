package config

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"time"

	"github.com/gxo-labs/taskgraph/internal/registry"
	"github.com/gxo-labs/taskgraph/internal/template"
	tgerrors "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/errors"
)

var (
	foldRegex    = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	envNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// ValidateConfig checks the rules the JSON schema cannot express and returns
// every violation found.
func ValidateConfig(c *Config) []error {
	var errs []error

	if c.Workers < 0 {
		errs = append(errs, tgerrors.NewValidationError("'workers' cannot be negative", nil))
	}

	seen := make(map[string]bool, len(c.Guessers))
	for i, id := range c.Guessers {
		if _, _, err := registry.SplitIdentifier(id); err != nil {
			errs = append(errs, tgerrors.NewValidationError(fmt.Sprintf("guessers[%d]: %v", i, err), err))
			continue
		}
		if seen[id] {
			errs = append(errs, tgerrors.NewValidationError(fmt.Sprintf("guessers[%d]: duplicate guesser '%s'", i, id), nil))
		}
		seen[id] = true
	}

	if !foldRegex.MatchString(c.Expo.Fold) {
		errs = append(errs, tgerrors.NewValidationError(fmt.Sprintf("expo.fold '%s' contains invalid characters (allowed: alphanumeric, underscore, hyphen)", c.Expo.Fold), nil))
	}
	if c.Expo.Weight < 1 {
		errs = append(errs, tgerrors.NewValidationError("expo.weight must be at least 1", nil))
	}

	errs = append(errs, validatePaths(&c.Paths)...)

	stepNames := make([]string, 0, len(c.Steps))
	for name := range c.Steps {
		stepNames = append(stepNames, name)
	}
	sort.Strings(stepNames)
	for _, name := range stepNames {
		step := c.Steps[name]
		if !slices.Contains(KnownSteps, name) {
			errs = append(errs, tgerrors.NewValidationError(fmt.Sprintf("steps: unknown step '%s' (known: %v)", name, KnownSteps), nil))
			continue
		}
		if step.Command == "" {
			errs = append(errs, tgerrors.NewValidationError(fmt.Sprintf("steps.%s: 'command' is required", name), nil))
		}
		if step.Timeout != "" {
			if d, err := time.ParseDuration(step.Timeout); err != nil {
				errs = append(errs, tgerrors.NewValidationError(fmt.Sprintf("steps.%s: invalid format for 'timeout': %v", name, err), err))
			} else if d <= 0 {
				errs = append(errs, tgerrors.NewValidationError(fmt.Sprintf("steps.%s: 'timeout' must be positive", name), nil))
			}
		}
		for i, secret := range step.Secrets {
			if !envNameRegex.MatchString(secret) {
				errs = append(errs, tgerrors.NewValidationError(fmt.Sprintf("steps.%s.secrets[%d]: '%s' is not a valid environment variable name", name, i, secret), nil))
			} else if _, clash := step.Env[secret]; clash {
				errs = append(errs, tgerrors.NewValidationError(fmt.Sprintf("steps.%s.secrets[%d]: '%s' is also set under 'env'", name, i, secret), nil))
			}
		}
	}
	return errs
}

// validatePaths checks that fixed paths are not templated and that per-fold
// templates parse and reference only fold and weight.
func validatePaths(p *Paths) []error {
	var errs []error
	renderer := template.NewGoRenderer()

	fixed := []struct{ key, value string }{
		{"question_db", p.QuestionDB},
		{"guess_db", p.GuessDB},
		{"guesser_dir", p.GuesserDir},
		{"expo_questions", p.ExpoQuestions},
	}
	for _, f := range fixed {
		vars, err := renderer.ExtractVariables(f.value)
		if err != nil {
			errs = append(errs, tgerrors.NewValidationError(fmt.Sprintf("paths.%s: %v", f.key, err), err))
			continue
		}
		if len(vars) > 0 {
			errs = append(errs, tgerrors.NewValidationError(fmt.Sprintf("paths.%s: must not reference template variables, found %v", f.key, vars), nil))
		}
	}

	perFold := []struct{ key, value string }{
		{"pred", p.Pred},
		{"meta", p.Meta},
		{"vw_audit", p.VWAudit},
		{"expo_buzz", p.ExpoBuzz},
		{"expo_final", p.ExpoFinal},
	}
	for _, f := range perFold {
		vars, err := renderer.ExtractVariables(f.value)
		if err != nil {
			errs = append(errs, tgerrors.NewValidationError(fmt.Sprintf("paths.%s: %v", f.key, err), err))
			continue
		}
		for _, v := range vars {
			if v != VarFold && v != VarWeight {
				errs = append(errs, tgerrors.NewValidationError(fmt.Sprintf("paths.%s: unknown template variable '%s' (allowed: %s, %s)", f.key, v, VarFold, VarWeight), nil))
			}
		}
	}
	return errs
}
