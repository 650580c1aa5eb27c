package directory

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository useful for tests.
// It applies the same merge and shape normalization as the Postgres repo.
type MemoryRepo struct {
	mu      sync.Mutex
	records map[string]Record
	clock   func() time.Time

	// Err, when set, is returned by every call. Lets tests simulate an
	// unreachable store.
	Err error
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{records: make(map[string]Record), clock: time.Now}
}

func (r *MemoryRepo) SetClock(clock func() time.Time) { r.clock = clock }

func (r *MemoryRepo) Get(ctx context.Context, phoneNumber string) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return Record{}, r.Err
	}
	rec, ok := r.records[phoneNumber]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec.normalizeShape(), nil
}

func (r *MemoryRepo) Put(ctx context.Context, rec Record) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return Record{}, r.Err
	}
	return r.putLocked(rec), nil
}

func (r *MemoryRepo) PutBatch(ctx context.Context, recs []Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	for _, rec := range recs {
		r.putLocked(rec)
	}
	return nil
}

func (r *MemoryRepo) putLocked(rec Record) Record {
	merged := merge(r.records[rec.PhoneNumber], rec, r.clock().UTC())
	r.records[rec.PhoneNumber] = merged
	return merged
}

func (r *MemoryRepo) Delete(ctx context.Context, phoneNumber string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	delete(r.records, phoneNumber)
	return nil
}

func (r *MemoryRepo) List(ctx context.Context, limit int, startAfter string) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	if limit <= 0 {
		limit = 25
	}
	keys := make([]string, 0, len(r.records))
	for k := range r.records {
		if k > startAfter {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if len(keys) > limit {
		keys = keys[:limit]
	}
	out := make([]Record, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.records[k].normalizeShape())
	}
	return out, nil
}

func (r *MemoryRepo) Count(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return 0, r.Err
	}
	return int64(len(r.records)), nil
}
