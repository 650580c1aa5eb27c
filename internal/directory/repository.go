package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"callnote-relay/pkg/utils"
)

// Repository is the persistence contract for the phone-to-email directory.
//
// Implementations must apply the legacy-shape normalization on read and the
// merge-on-write union on put; callers never see the dual email/emails
// shape and never lose emails written by a previous put.
type Repository interface {
	Get(ctx context.Context, phoneNumber string) (Record, error)
	// Put merges the incoming record into any existing one for the same key.
	Put(ctx context.Context, rec Record) (Record, error)
	// PutBatch merges a set of records atomically (all or nothing).
	PutBatch(ctx context.Context, recs []Record) error
	Delete(ctx context.Context, phoneNumber string) error
	// List returns up to limit records ordered by phone number ascending,
	// starting strictly after startAfter (empty means from the beginning).
	List(ctx context.Context, limit int, startAfter string) ([]Record, error)
	Count(ctx context.Context) (int64, error)
}

var (
	ErrNotFound        = errors.New("directory: not found")
	ErrInvalidArgument = errors.New("directory: invalid argument")
)

// PostgresRepo stores the directory in a single table:
//
//	CREATE TABLE phone_email_mappings (
//	    phone_number TEXT PRIMARY KEY,
//	    emails       TEXT NOT NULL,          -- JSON array, insertion-ordered
//	    email        TEXT NOT NULL,          -- legacy mirror of emails[0]
//	    contact_name TEXT NOT NULL DEFAULT '',
//	    company_name TEXT NOT NULL DEFAULT '',
//	    phone_type   TEXT NOT NULL DEFAULT '',
//	    updated_at   TIMESTAMPTZ NOT NULL
//	);
//
// Merge-on-write runs inside a transaction with the row locked FOR UPDATE,
// so concurrent puts to the same key serialize instead of losing emails.
type PostgresRepo struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db, clock: time.Now}
}

func (r *PostgresRepo) Get(ctx context.Context, phoneNumber string) (Record, error) {
	if phoneNumber == "" {
		return Record{}, ErrInvalidArgument
	}
	const q = `
SELECT phone_number, emails, email, contact_name, company_name, phone_type, updated_at
FROM phone_email_mappings
WHERE phone_number = $1
`
	return scanRecord(r.db.QueryRowContext(ctx, q, phoneNumber))
}

func (r *PostgresRepo) Put(ctx context.Context, rec Record) (Record, error) {
	var out Record
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		merged, err := mergeInTx(ctx, tx, rec, r.clock().UTC())
		if err != nil {
			return err
		}
		out = merged
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	return out, nil
}

func (r *PostgresRepo) PutBatch(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	now := r.clock().UTC()
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		for _, rec := range recs {
			if _, err := mergeInTx(ctx, tx, rec, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func mergeInTx(ctx context.Context, tx *sql.Tx, incoming Record, now time.Time) (Record, error) {
	if incoming.PhoneNumber == "" {
		return Record{}, ErrInvalidArgument
	}

	const lockQ = `
SELECT phone_number, emails, email, contact_name, company_name, phone_type, updated_at
FROM phone_email_mappings
WHERE phone_number = $1
FOR UPDATE
`
	existing, err := scanRecord(tx.QueryRowContext(ctx, lockQ, incoming.PhoneNumber))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Record{}, err
	}

	merged := merge(existing, incoming, now)
	emailsJSON, err := json.Marshal(merged.Emails)
	if err != nil {
		return Record{}, err
	}

	const upsertQ = `
INSERT INTO phone_email_mappings (phone_number, emails, email, contact_name, company_name, phone_type, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (phone_number) DO UPDATE SET
    emails = EXCLUDED.emails,
    email = EXCLUDED.email,
    contact_name = EXCLUDED.contact_name,
    company_name = EXCLUDED.company_name,
    phone_type = EXCLUDED.phone_type,
    updated_at = EXCLUDED.updated_at
`
	if _, err := tx.ExecContext(ctx, upsertQ,
		merged.PhoneNumber,
		string(emailsJSON),
		merged.Email,
		merged.ContactName,
		merged.CompanyName,
		merged.PhoneType,
		merged.UpdatedAt,
	); err != nil {
		return Record{}, fmt.Errorf("directory: upsert failed: %w", err)
	}
	return merged, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, phoneNumber string) error {
	if phoneNumber == "" {
		return ErrInvalidArgument
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM phone_email_mappings WHERE phone_number = $1`, phoneNumber)
	return err
}

func (r *PostgresRepo) List(ctx context.Context, limit int, startAfter string) ([]Record, error) {
	if limit <= 0 {
		limit = 25
	}
	const q = `
SELECT phone_number, emails, email, contact_name, company_name, phone_type, updated_at
FROM phone_email_mappings
WHERE phone_number > $1
ORDER BY phone_number ASC
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, q, startAfter, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM phone_email_mappings`).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var emailsJSON string
	err := row.Scan(
		&rec.PhoneNumber,
		&emailsJSON,
		&rec.Email,
		&rec.ContactName,
		&rec.CompanyName,
		&rec.PhoneType,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	if emailsJSON != "" {
		// Rows written by older iterations may hold an empty array here
		// with only the legacy email column set; normalizeShape folds that.
		if err := json.Unmarshal([]byte(emailsJSON), &rec.Emails); err != nil {
			rec.Emails = nil
		}
	}
	return rec.normalizeShape(), nil
}
