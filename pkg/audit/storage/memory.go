package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"mercator-hq/ganymede/pkg/audit"
)

// MemoryStorage implements the Storage interface with an in-memory slice,
// preserving append order. Intended for tests and ephemeral deployments;
// nothing survives a restart.
type MemoryStorage struct {
	decisions []*audit.Decision
	mu        sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		decisions: make([]*audit.Decision, 0, 64),
	}
}

// Store appends a decision record.
func (s *MemoryStorage) Store(ctx context.Context, d *audit.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Copy so callers cannot mutate stored records
	cp := *d
	s.decisions = append(s.decisions, &cp)

	return nil
}

// Query retrieves decisions matching the query filters.
func (s *MemoryStorage) Query(ctx context.Context, q *audit.Query) ([]*audit.Decision, error) {
	s.mu.RLock()

	results := make([]*audit.Decision, 0)
	for _, d := range s.decisions {
		if matchesQuery(d, q) {
			cp := *d
			results = append(results, &cp)
		}
	}
	s.mu.RUnlock()

	sortDecisions(results, q)

	// Pagination after sorting
	start := q.Offset
	if start > len(results) {
		return []*audit.Decision{}, nil
	}
	end := len(results)
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}

	return results[start:end], nil
}

// QueryStream streams matching decisions over a channel. Both channels are
// closed when the query completes or errors.
func (s *MemoryStorage) QueryStream(ctx context.Context, q *audit.Query) (<-chan *audit.Decision, <-chan error, error) {
	decisionCh := make(chan *audit.Decision, 100)
	errCh := make(chan error, 1)

	// Snapshot under the read lock, then stream without holding it
	matched, err := s.Query(ctx, q)
	if err != nil {
		return nil, nil, err
	}

	go func() {
		defer close(decisionCh)
		defer close(errCh)

		for _, d := range matched {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case decisionCh <- d:
			}
		}
	}()

	return decisionCh, errCh, nil
}

// Count returns the number of decisions matching the query filters.
func (s *MemoryStorage) Count(ctx context.Context, q *audit.Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, d := range s.decisions {
		if matchesQuery(d, q) {
			count++
		}
	}

	return count, nil
}

// LastHash returns the hash of the most recently appended decision.
func (s *MemoryStorage) LastHash(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.decisions) == 0 {
		return "", nil
	}
	return s.decisions[len(s.decisions)-1].Hash, nil
}

// Prune removes decisions with a timestamp before the cutoff. Reserved for
// the retention collaborator.
func (s *MemoryStorage) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.decisions[:0]
	var pruned int64
	for _, d := range s.decisions {
		if d.Timestamp.Before(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, d)
	}
	s.decisions = kept

	return pruned, nil
}

// Close releases resources held by the storage backend.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.decisions = nil
	return nil
}

// matchesQuery checks whether a decision passes the query filters.
func matchesQuery(d *audit.Decision, q *audit.Query) bool {
	// Time range
	if q.StartTime != nil && d.Timestamp.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && d.Timestamp.After(*q.EndTime) {
		return false
	}

	// Subject keys
	if q.RunID != "" && d.RunID != q.RunID {
		return false
	}
	if q.ResourceID != "" && d.ResourceID != q.ResourceID {
		return false
	}
	if q.ActionName != "" && d.ActionName != q.ActionName {
		return false
	}
	if q.SubjectID != "" && d.SubjectID != q.SubjectID {
		return false
	}

	// Verdict
	if q.RuleID != "" && d.RuleID != q.RuleID {
		return false
	}
	if q.Outcome != "" && d.Outcome != q.Outcome {
		return false
	}
	if q.Component != "" && d.Component != q.Component {
		return false
	}

	return true
}

// sortDecisions orders results per the query, defaulting to timestamp
// ascending. The sort is stable, so records with equal timestamps keep
// their append order.
func sortDecisions(ds []*audit.Decision, q *audit.Query) {
	less := func(i, j int) bool {
		a, b := ds[i], ds[j]
		switch q.SortBy {
		case "recorded_time":
			return a.RecordedTime.Before(b.RecordedTime)
		default:
			return a.Timestamp.Before(b.Timestamp)
		}
	}

	if q.SortOrder == "desc" {
		sort.SliceStable(ds, func(i, j int) bool { return less(j, i) })
		return
	}
	sort.SliceStable(ds, less)
}

// Clear removes all decisions (for testing).
func (s *MemoryStorage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.decisions = s.decisions[:0]
}

// Size returns the number of stored decisions (for testing).
func (s *MemoryStorage) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.decisions)
}
