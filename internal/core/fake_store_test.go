package core

import (
	"context"
	"errors"
	"sync"
)

// fakeStore is an in-memory Store that can be told to fail.
type fakeStore struct {
	mu     sync.Mutex
	tables map[string][]map[string]any
	resets int
	calls  map[EntityType]int

	// transient[t] makes the next n LoadBatch calls for t fail transiently.
	transient map[EntityType]int
	// fail[t] makes LoadBatch for t fail permanently with the error.
	fail map[EntityType]error

	runs []*Report
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tables:    make(map[string][]map[string]any),
		calls:     make(map[EntityType]int),
		transient: make(map[EntityType]int),
		fail:      make(map[EntityType]error),
	}
}

var errConnReset = errors.New("connection reset by peer")

func (s *fakeStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = make(map[string][]map[string]any)
	s.resets++
	return nil
}

func (s *fakeStore) LoadBatch(ctx context.Context, b Batch) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[b.Type]++

	if n := s.transient[b.Type]; n > 0 {
		s.transient[b.Type] = n - 1
		return 0, &Error{Kind: KindStorageUnavailable, Err: errConnReset}
	}
	if err := s.fail[b.Type]; err != nil {
		return 0, err
	}

	for _, row := range b.Rows {
		m := make(map[string]any, len(row))
		for i, col := range b.Table.Columns {
			m[col] = row[i]
		}
		s.tables[b.Table.Name] = append(s.tables[b.Table.Name], m)
	}
	return int64(len(b.Rows)), nil
}

func (s *fakeStore) RecordRun(ctx context.Context, report *Report, rejections []Rejection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, report)
	return nil
}

func (s *fakeStore) rows(table string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tables[table]
}

// cancelAfterStore cancels the run's context once a batch of type after
// has committed.
type cancelAfterStore struct {
	*fakeStore
	after  EntityType
	cancel context.CancelFunc
}

func (s *cancelAfterStore) LoadBatch(ctx context.Context, b Batch) (int64, error) {
	n, err := s.fakeStore.LoadBatch(ctx, b)
	if err == nil && b.Type == s.after {
		s.cancel()
	}
	return n, err
}
