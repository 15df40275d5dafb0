package mocks

import (
	"context"
	"sync"

	"github.com/V4T54L/telemetry-sink/internal/domain"
)

// MockRecordRepository is a mock implementation of domain.RecordRepository for testing.
type MockRecordRepository struct {
	mu       sync.Mutex
	Inserted []domain.StorageRecord
	Calls    int
	// InsertErr, when set, fails every insert.
	InsertErr error
	// InsertFunc, when set, decides the outcome of each insert. It runs
	// outside the mock's lock so it may block.
	InsertFunc func(ctx context.Context, record domain.StorageRecord) error
}

func (m *MockRecordRepository) InsertRecord(ctx context.Context, record domain.StorageRecord) error {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()

	err := m.InsertErr
	if m.InsertFunc != nil {
		err = m.InsertFunc(ctx, record)
	}
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Inserted = append(m.Inserted, record)
	return nil
}

// CallCount returns how many inserts were attempted.
func (m *MockRecordRepository) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

// Records returns a copy of the successfully inserted records.
func (m *MockRecordRepository) Records() []domain.StorageRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.StorageRecord(nil), m.Inserted...)
}

// MockForwardClient is a mock implementation of domain.ForwardClient for testing.
type MockForwardClient struct {
	mu       sync.Mutex
	URLs     []string
	Payloads []any
	Status   int
	Err      error
	// Block, when non-nil, is received from before PostJSON returns.
	Block chan struct{}
	// Done, when non-nil, is signalled after every call.
	Done chan struct{}
}

func (m *MockForwardClient) PostJSON(ctx context.Context, url string, payload any) (int, error) {
	m.mu.Lock()
	m.URLs = append(m.URLs, url)
	m.Payloads = append(m.Payloads, payload)
	status, err := m.Status, m.Err
	m.mu.Unlock()

	if m.Block != nil {
		<-m.Block
	}
	if m.Done != nil {
		defer func() { m.Done <- struct{}{} }()
	}
	if err != nil {
		return 0, err
	}
	if status == 0 {
		status = 200
	}
	return status, nil
}

// CallCount returns how many forwards were attempted.
func (m *MockForwardClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.URLs)
}
