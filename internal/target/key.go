package target

import (
	"fmt"

	"github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/task"
)

// KeyChecker is a store that can answer whether a key is present.
type KeyChecker interface {
	Has(key string) (bool, error)
}

// KeyTarget is a record in an external store. Lookup errors count as missing.
type KeyTarget struct {
	Store KeyChecker
	Key   string
	// Name labels the store in String, e.g. "questions".
	Name string
}

var _ task.Target = (*KeyTarget)(nil)

func (t *KeyTarget) Exists() bool {
	if t.Store == nil {
		return false
	}
	ok, err := t.Store.Has(t.Key)
	return err == nil && ok
}

func (t *KeyTarget) String() string {
	if t.Name == "" {
		return t.Key
	}
	return fmt.Sprintf("%s:%s", t.Name, t.Key)
}
