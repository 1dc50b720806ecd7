// Package eqc integrates the Enterprise Query Center API as the external
// lookup source for company identities. Client talks HTTP; Provider wraps it
// with the per-run request budget the resolver relies on.
package eqc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// ErrNoResult means the provider answered but found no match for the name.
// It is distinct from transport failures: the queue treats both as
// recoverable, but records a descriptive last_error for no-result.
var ErrNoResult = errors.New("eqc: no results for name")

// Match is a successful lookup result.
type Match struct {
	CompanyID    string
	OfficialName string
}

// Client is a thin HTTP client for the EQC search endpoint.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
	logger  *slog.Logger
}

// NewClient creates an EQC client. timeout bounds each request; the caller
// treats timeouts like any other lookup failure.
func NewClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpc:   &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type searchResponse struct {
	Results []struct {
		CompanyID    string `json:"company_id"`
		OfficialName string `json:"official_name"`
	} `json:"results"`
}

// Search queries EQC for a company by name. Returns ErrNoResult when the
// provider has no match.
func (c *Client) Search(ctx context.Context, name string) (Match, error) {
	u := fmt.Sprintf("%s/kg-api-hfd/api/search/searchAll?keyword=%s&currentPage=1", c.baseURL, url.QueryEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Match{}, fmt.Errorf("building eqc request: %w", err)
	}
	req.Header.Set("token", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return Match{}, fmt.Errorf("calling eqc: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Match{}, fmt.Errorf("eqc returned status %d", resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Match{}, fmt.Errorf("decoding eqc response: %w", err)
	}

	if len(body.Results) == 0 {
		return Match{}, ErrNoResult
	}

	first := body.Results[0]
	if first.CompanyID == "" {
		return Match{}, ErrNoResult
	}
	return Match{CompanyID: first.CompanyID, OfficialName: first.OfficialName}, nil
}
