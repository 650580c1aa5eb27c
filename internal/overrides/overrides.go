package overrides

import (
	"encoding/json"
	"fmt"
	"os"

	"callnote-relay/internal/phone"
)

// Table holds the static, highest-precedence phone mappings. It is loaded
// once at startup and read-only afterwards: updates ship as config, not
// code.
//
// Precedence (enforced by the resolution engine, not here):
// a contact-id entry bypasses everything; an email entry bypasses the
// directory but still goes through CRM search.
type Table struct {
	emails     map[string][]string
	contactIDs map[string]string
}

// fileFormat is the on-disk JSON shape:
//
//	{
//	  "emails":     {"+18884640727": ["capitalone@example.com"]},
//	  "contactIds": {"+18884640727": "cea99ef5-..."}
//	}
//
// Email values may also be a single string for hand-edited files.
type fileFormat struct {
	Emails     map[string]emailList `json:"emails"`
	ContactIDs map[string]string    `json:"contactIds"`
}

type emailList []string

func (e *emailList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*e = emailList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*e = emailList(many)
	return nil
}

// Empty returns a table with no entries. Resolution falls straight through
// to the directory.
func Empty() *Table {
	return &Table{emails: map[string][]string{}, contactIDs: map[string]string{}}
}

// LoadFile reads and validates an override table. Keys are normalized on
// load so lookups can assume canonical form; a key that fails
// normalization is a config error, not a silent skip.
func LoadFile(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("overrides: read %s: %w", path, err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Table, error) {
	var f fileFormat
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("overrides: invalid json: %w", err)
	}

	t := Empty()
	for k, v := range f.Emails {
		key, ok := phone.Normalize(k)
		if !ok {
			return nil, fmt.Errorf("overrides: invalid phone key %q in emails", k)
		}
		if len(v) == 0 {
			return nil, fmt.Errorf("overrides: empty email list for %q", k)
		}
		t.emails[key] = append([]string(nil), v...)
	}
	for k, v := range f.ContactIDs {
		key, ok := phone.Normalize(k)
		if !ok {
			return nil, fmt.Errorf("overrides: invalid phone key %q in contactIds", k)
		}
		if v == "" {
			return nil, fmt.Errorf("overrides: empty contact id for %q", k)
		}
		t.contactIDs[key] = v
	}
	return t, nil
}

// EmailsFor returns the override email list for a normalized phone key.
func (t *Table) EmailsFor(key string) ([]string, bool) {
	v, ok := t.emails[key]
	return v, ok
}

// ContactIDFor returns the override contact id for a normalized phone key.
func (t *Table) ContactIDFor(key string) (string, bool) {
	v, ok := t.contactIDs[key]
	return v, ok
}

// Matches reports whether any of the given numbers appears in either map.
// Used to flag stored call context for observability.
func (t *Table) Matches(numbers ...string) bool {
	for _, n := range numbers {
		key, ok := phone.Normalize(n)
		if !ok {
			continue
		}
		if _, ok := t.emails[key]; ok {
			return true
		}
		if _, ok := t.contactIDs[key]; ok {
			return true
		}
	}
	return false
}
