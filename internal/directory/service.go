package directory

import (
	"context"
	"fmt"

	"callnote-relay/internal/phone"
)

// Service validates and normalizes directory operations before they reach
// the repository. All phone numbers entering here are free-form; everything
// past this point is keyed by the normalized form.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// batchSize bounds the per-transaction row count for bulk imports.
// Atomicity is per batch, not across the whole import.
const batchSize = 200

func (s *Service) Get(ctx context.Context, rawPhone string) (Record, error) {
	key, ok := phone.Normalize(rawPhone)
	if !ok {
		return Record{}, fmt.Errorf("%w: invalid phone number", ErrInvalidArgument)
	}
	return s.repo.Get(ctx, key)
}

// Save validates and merges one or more mappings. Each mapping must carry a
// normalizable phone number and at least one syntactically valid email.
func (s *Service) Save(ctx context.Context, recs []Record) (int, error) {
	if len(recs) == 0 {
		return 0, fmt.Errorf("%w: no mappings supplied", ErrInvalidArgument)
	}
	prepared := make([]Record, 0, len(recs))
	for i, rec := range recs {
		p, err := prepare(rec)
		if err != nil {
			return 0, fmt.Errorf("mapping %d: %w", i, err)
		}
		prepared = append(prepared, p)
	}
	if err := s.repo.PutBatch(ctx, prepared); err != nil {
		return 0, err
	}
	return len(prepared), nil
}

func prepare(rec Record) (Record, error) {
	key, ok := phone.Normalize(rec.PhoneNumber)
	if !ok {
		return Record{}, fmt.Errorf("%w: invalid phone number %q", ErrInvalidArgument, rec.PhoneNumber)
	}
	rec.PhoneNumber = key
	rec = rec.normalizeShape()
	if len(rec.Emails) == 0 {
		return Record{}, fmt.Errorf("%w: phone number and email are required", ErrInvalidArgument)
	}
	for _, e := range rec.Emails {
		if !phone.IsValidEmail(e) {
			return Record{}, fmt.Errorf("%w: invalid email format %q", ErrInvalidArgument, e)
		}
	}
	return rec, nil
}

func (s *Service) Delete(ctx context.Context, rawPhone string) error {
	key, ok := phone.Normalize(rawPhone)
	if !ok {
		return fmt.Errorf("%w: invalid phone number", ErrInvalidArgument)
	}
	return s.repo.Delete(ctx, key)
}

// List pages through records ordered by phone number. The optional search
// substring is applied to the fetched page, not pushed down to the store,
// so a filtered page may come back short.
func (s *Service) List(ctx context.Context, search string, limit int, startAfter string) ([]Record, string, error) {
	page, err := s.repo.List(ctx, limit, startAfter)
	if err != nil {
		return nil, "", err
	}
	lastKey := ""
	if len(page) > 0 {
		lastKey = page[len(page)-1].PhoneNumber
	}
	if search == "" {
		return page, lastKey, nil
	}
	filtered := make([]Record, 0, len(page))
	for _, rec := range page {
		if rec.matches(search) {
			filtered = append(filtered, rec)
		}
	}
	return filtered, lastKey, nil
}

func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx)
}
