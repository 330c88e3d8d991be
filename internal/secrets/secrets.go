// Package secrets resolves the secret values handed to step commands and
// keeps them out of anything the pipeline prints.
package secrets

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync"
)

// Redacted replaces every tracked secret in redacted text.
const Redacted = "[REDACTED]"

// Provider looks up secrets by name. found is false when the secret does not
// exist; err is reserved for lookup failures.
type Provider interface {
	GetSecret(ctx context.Context, name string) (value string, found bool, err error)
}

// EnvProvider reads secrets from the environment of the taskgraph process.
type EnvProvider struct{}

func NewEnvProvider() *EnvProvider {
	return &EnvProvider{}
}

func (*EnvProvider) GetSecret(_ context.Context, name string) (string, bool, error) {
	value, found := os.LookupEnv(name)
	return value, found, nil
}

// MapProvider serves secrets from a fixed map.
type MapProvider map[string]string

func (m MapProvider) GetSecret(_ context.Context, name string) (string, bool, error) {
	value, found := m[name]
	return value, found, nil
}

// Tracker remembers the secret values resolved for one step run. It is safe
// for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	values map[string]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{values: make(map[string]struct{})}
}

// Add tracks value. Empty values are ignored.
func (t *Tracker) Add(value string) {
	if value == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.values[value] = struct{}{}
}

// Contains reports whether input holds any tracked value.
func (t *Tracker) Contains(input string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for v := range t.values {
		if strings.Contains(input, v) {
			return true
		}
	}
	return false
}

// Redact replaces every tracked value in input. Longer values are replaced
// first so a secret containing another is hidden whole.
func (t *Tracker) Redact(input string) string {
	t.mu.RLock()
	values := make([]string, 0, len(t.values))
	for v := range t.values {
		values = append(values, v)
	}
	t.mu.RUnlock()

	sort.Slice(values, func(i, j int) bool { return len(values[i]) > len(values[j]) })
	for _, v := range values {
		input = strings.ReplaceAll(input, v, Redacted)
	}
	return input
}
