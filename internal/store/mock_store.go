package store

import (
	"errors"
	"sort"
	"sync"

	"example.com/timelinefeed/internal/models"
)

// MockStore simulates the Cassandra journal for testing.
type MockStore struct {
	mu         sync.Mutex
	Events     map[string]models.Event
	ShouldFail bool // flag to simulate failures
	Closed     bool
}

// NewMock initializes a new mock store
func NewMock() *MockStore {
	return &MockStore{
		Events: make(map[string]models.Event),
	}
}

func (m *MockStore) Close() {
	m.mu.Lock()
	m.Closed = true
	m.mu.Unlock()
}

// AppendEvent keys events by id, like the activity_log primary key.
func (m *MockStore) AppendEvent(ev models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errors.New("mock: append event failed")
	}
	m.Events[ev.ID] = ev
	return nil
}

// LoadEvents returns events sorted by id, matching the clustering order.
func (m *MockStore) LoadEvents() ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errors.New("mock: load events failed")
	}
	res := make([]models.Event, 0, len(m.Events))
	for _, ev := range m.Events {
		res = append(res, ev)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// Len returns how many events are journaled.
func (m *MockStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Events)
}

// ---------------------------------------------
// MockStoreFail always returns errors for negative tests
type MockStoreFail struct{}

func (m *MockStoreFail) Close() {}

func (m *MockStoreFail) AppendEvent(ev models.Event) error {
	return errors.New("mock store append event failed")
}

func (m *MockStoreFail) LoadEvents() ([]models.Event, error) {
	return nil, errors.New("mock store load events failed")
}
