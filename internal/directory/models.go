package directory

import (
	"strings"
	"time"
)

// Record maps a normalized phone number to one or more email addresses
// plus free-form contact metadata.
//
// Invariants:
// - PhoneNumber is always a normalized key (see internal/phone).
// - Emails is never empty once a record exists; insertion order is write
//   order with duplicates removed (case-sensitive).
// - Email mirrors Emails[0] for readers of the legacy single-email shape.
type Record struct {
	PhoneNumber string   `json:"phoneNumber"`
	Emails      []string `json:"emails"`

	// Email is the legacy single-email field. Kept populated on write for
	// backward-compatible readers; on read it is folded into Emails when
	// the array is absent.
	Email string `json:"email,omitempty"`

	ContactName string `json:"contactName,omitempty"`
	CompanyName string `json:"companyName,omitempty"`
	PhoneType   string `json:"phoneType,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// normalizeShape folds the legacy single-email field into the Emails array
// and re-mirrors Email. This runs once at the store boundary; nothing past
// the repository ever sees the dual shape.
func (r Record) normalizeShape() Record {
	if len(r.Emails) == 0 && r.Email != "" {
		r.Emails = []string{r.Email}
	}
	r.Emails = dedupe(r.Emails)
	if len(r.Emails) > 0 {
		r.Email = r.Emails[0]
	}
	return r
}

// merge unions incoming emails into the existing record, keeping insertion
// order, and overwrites metadata fields with newly supplied non-empty
// values. UpdatedAt is refreshed on every write.
func merge(existing, incoming Record, now time.Time) Record {
	out := existing.normalizeShape()
	in := incoming.normalizeShape()

	out.PhoneNumber = in.PhoneNumber
	out.Emails = dedupe(append(out.Emails, in.Emails...))
	if len(out.Emails) > 0 {
		out.Email = out.Emails[0]
	}
	if in.ContactName != "" {
		out.ContactName = in.ContactName
	}
	if in.CompanyName != "" {
		out.CompanyName = in.CompanyName
	}
	if in.PhoneType != "" {
		out.PhoneType = in.PhoneType
	}
	out.UpdatedAt = now
	return out
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// matches reports whether the record contains the search substring in any
// of its visible fields. Search is applied by callers after fetching a
// page, not pushed down to the store.
func (r Record) matches(search string) bool {
	if search == "" {
		return true
	}
	if strings.Contains(r.PhoneNumber, search) || strings.Contains(r.ContactName, search) || strings.Contains(r.CompanyName, search) {
		return true
	}
	for _, e := range r.Emails {
		if strings.Contains(e, search) {
			return true
		}
	}
	return false
}
