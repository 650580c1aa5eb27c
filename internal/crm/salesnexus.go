package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Client talks to the SalesNexus API. The API is a JSON-RPC-like envelope:
// every request is an array of {function, parameters} objects posted to a
// single endpoint, authenticated by a login-token parameter.
type Client struct {
	BaseURL string
	APIKey  string

	HTTPClient *http.Client
}

const apiPath = "/api/call-v1"

var ErrAPIError = errors.New("crm: api error")

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type call struct {
	Function   string         `json:"function"`
	Parameters map[string]any `json:"parameters"`
	RequestID  string         `json:"request-id,omitempty"`
}

type callResult struct {
	Result *struct {
		Success     string       `json:"success"`
		ContactList *contactList `json:"contact-list"`
	} `json:"result"`
	Error string `json:"error"`
}

type contactList struct {
	ContactIDs       []string                   `json:"contact-ids"`
	TotalRecordCount string                     `json:"total-record-count"`
	ContactInfo      map[string]json.RawMessage `json:"contact-info"`
}

// FindContactByEmail searches contacts by email and returns the first
// matching contact id, or "" when nothing matches. The response carries
// contact ids in one of two shapes depending on API version; both are
// checked.
func (c *Client) FindContactByEmail(ctx context.Context, email string) (string, error) {
	if email == "" {
		return "", nil
	}
	results, err := c.invoke(ctx, []call{{
		Function: "get-contacts",
		Parameters: map[string]any{
			"login-token":  c.APIKey,
			"filter-value": email,
			"start-after":  "0",
			"page-size":    "10",
		},
	}})
	if err != nil {
		return "", err
	}
	if len(results) == 0 || results[0].Result == nil || results[0].Result.Success != "true" {
		return "", nil
	}
	cl := results[0].Result.ContactList
	if cl == nil {
		return "", nil
	}
	if len(cl.ContactIDs) > 0 {
		return cl.ContactIDs[0], nil
	}
	// Older responses key contacts by id under contact-info instead.
	for id := range cl.ContactInfo {
		return id, nil
	}
	return "", nil
}

// CreateNote attaches a free-text note to a contact.
func (c *Client) CreateNote(ctx context.Context, contactID, details string) error {
	if contactID == "" {
		return fmt.Errorf("%w: contact id is required", ErrAPIError)
	}
	results, err := c.invoke(ctx, []call{{
		Function: "create-note",
		Parameters: map[string]any{
			"login-token": c.APIKey,
			"contact-id":  contactID,
			"details":     details,
			"type":        1,
		},
		RequestID: "openphone-webhook-" + uuid.NewString(),
	}})
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("%w: empty response", ErrAPIError)
	}
	if results[0].Error != "" {
		return fmt.Errorf("%w: %s", ErrAPIError, results[0].Error)
	}
	if results[0].Result == nil || results[0].Result.Success != "true" {
		return fmt.Errorf("%w: note creation not acknowledged", ErrAPIError)
	}
	return nil
}

func (c *Client) invoke(ctx context.Context, calls []call) ([]callResult, error) {
	payload, err := json.Marshal(calls)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+apiPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrAPIError, resp.StatusCode)
	}
	var results []callResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("%w: bad response body: %v", ErrAPIError, err)
	}
	return results, nil
}
