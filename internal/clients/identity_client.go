package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ErrIdentityService is returned for transport or upstream failures of the
// identity lookup service. Callers treat it as best-effort and keep the
// prior identity state.
var ErrIdentityService = errors.New("identity lookup service unavailable")

// LookupResult is the tagged outcome of an identity lookup. When Found is
// false the other fields are meaningless and the caller keeps whatever name
// the split already had.
type LookupResult struct {
	Found      bool   `json:"found"`
	Name       string `json:"name,omitempty"`
	CheckDigit string `json:"check_digit,omitempty"`
}

// IdentityClient resolves natural-person document numbers against the
// external identity lookup service.
type IdentityClient interface {
	Lookup(ctx context.Context, docTypeCode, docNumber string) (LookupResult, error)
}

type identityClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewIdentityClient creates an IdentityClient against the given base URL.
func NewIdentityClient(baseURL string) IdentityClient {
	return &identityClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *identityClient) Lookup(ctx context.Context, docTypeCode, docNumber string) (LookupResult, error) {
	endpoint := fmt.Sprintf("%s/lookup?doc_type=%s&doc_number=%s",
		c.baseURL, url.QueryEscape(docTypeCode), url.QueryEscape(docNumber))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return LookupResult{}, fmt.Errorf("%w: building request: %v", ErrIdentityService, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return LookupResult{}, fmt.Errorf("%w: %v", ErrIdentityService, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return LookupResult{Found: false}, nil
	case resp.StatusCode != http.StatusOK:
		return LookupResult{}, fmt.Errorf("%w: status %d", ErrIdentityService, resp.StatusCode)
	}

	var payload struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return LookupResult{}, fmt.Errorf("%w: decoding response: %v", ErrIdentityService, err)
	}
	if payload.Name == "" {
		return LookupResult{Found: false}, nil
	}
	return LookupResult{Found: true, Name: payload.Name}, nil
}
