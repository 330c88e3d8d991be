package state

import (
	"fmt"
	"maps"
	"sync"

	tgstate "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/state"
)

// TaskKeyPrefix namespaces the per-task bookkeeping the engine writes.
const TaskKeyPrefix = "_taskgraph.tasks"

// TaskStatusKey returns the key holding the status of the task with the
// given identity key.
func TaskStatusKey(taskID string) string {
	return fmt.Sprintf("%s.%s.status", TaskKeyPrefix, taskID)
}

// TaskErrorKey returns the key holding the error message of a failed task.
func TaskErrorKey(taskID string) string {
	return fmt.Sprintf("%s.%s.error", TaskKeyPrefix, taskID)
}

// MemoryStateStore is a map guarded by a RWMutex. Values are stored and
// returned as-is; the engine only stores strings.
type MemoryStateStore struct {
	mu   sync.RWMutex
	data map[string]interface{}
}

var _ tgstate.Store = (*MemoryStateStore)(nil)

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{data: make(map[string]interface{})}
}

func (s *MemoryStateStore) Get(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *MemoryStateStore) GetAll() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.data)
}

func (s *MemoryStateStore) Set(key string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *MemoryStateStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return tgstate.ErrKeyNotFound
	}
	delete(s.data, key)
	return nil
}

// Load replaces the state with a shallow copy of data.
func (s *MemoryStateStore) Load(data map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = maps.Clone(data)
	if s.data == nil {
		s.data = make(map[string]interface{})
	}
	return nil
}

func (s *MemoryStateStore) Close() error { return nil }
