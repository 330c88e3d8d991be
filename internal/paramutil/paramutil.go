// Package paramutil reads typed values out of task parameters. Parameters
// arrive either from code (typed values) or from the command line (strings),
// so numeric getters accept both.
package paramutil

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	tgerrors "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/errors"
	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/task"
)

// GetRequiredString returns params[key] when it is a string.
func GetRequiredString(params task.Params, key string) (string, error) {
	value, exists := params[key]
	if !exists {
		return "", tgerrors.NewValidationError(fmt.Sprintf("missing required parameter '%s'", key), nil)
	}
	s, ok := value.(string)
	if !ok {
		return "", tgerrors.NewValidationError(fmt.Sprintf("parameter '%s' must be a string, got %T", key, value), nil)
	}
	return s, nil
}

// GetOptionalString returns params[key] and true when present. A present
// value of another type is an error.
func GetOptionalString(params task.Params, key string) (string, bool, error) {
	if _, exists := params[key]; !exists {
		return "", false, nil
	}
	s, err := GetRequiredString(params, key)
	if err != nil {
		return "", false, err
	}
	return s, true, nil
}

// GetRequiredInt returns params[key] as an int. Integer types, integral
// floats and decimal strings are accepted.
func GetRequiredInt(params task.Params, key string) (int, error) {
	value, exists := params[key]
	if !exists {
		return 0, tgerrors.NewValidationError(fmt.Sprintf("missing required parameter '%s'", key), nil)
	}
	switch v := value.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		if v == float64(int(v)) {
			return int(v), nil
		}
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err == nil {
			return n, nil
		}
		return 0, tgerrors.NewValidationError(fmt.Sprintf("parameter '%s' must be an integer, got '%s'", key, v), err)
	}
	return 0, tgerrors.NewValidationError(fmt.Sprintf("parameter '%s' must be an integer, got %T", key, value), nil)
}

// GetOptionalInt returns params[key] as an int, or def when absent.
func GetOptionalInt(params task.Params, key string, def int) (int, error) {
	if _, exists := params[key]; !exists {
		return def, nil
	}
	return GetRequiredInt(params, key)
}

// CheckAllowed rejects parameters not named in allowed.
func CheckAllowed(params task.Params, allowed ...string) error {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, k := range allowed {
		allowedSet[k] = struct{}{}
	}
	var unknown []string
	for k := range params {
		if _, ok := allowedSet[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return tgerrors.NewValidationError(fmt.Sprintf("unknown parameter(s): %s", strings.Join(unknown, ", ")), nil)
	}
	return nil
}

// ParseKeyValues turns "key=value" pairs into Params. Values stay strings;
// typed getters convert them.
func ParseKeyValues(pairs []string) (task.Params, error) {
	params := make(task.Params, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, tgerrors.NewValidationError(fmt.Sprintf("parameter '%s' must have the form key=value", pair), nil)
		}
		if _, dup := params[key]; dup {
			return nil, tgerrors.NewValidationError(fmt.Sprintf("parameter '%s' given more than once", key), nil)
		}
		params[key] = value
	}
	return params, nil
}
