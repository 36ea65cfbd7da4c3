package membership

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"guildhall/contexts/governance/election-service/ports"

	"github.com/sethgrid/pester"
)

// HTTPDoer is the subset of http.Client the eligibility client needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	Logger     *slog.Logger
}

// Client asks the membership service whether a member may vote in an
// election. Retries happen inside one predicate evaluation; callers bound the
// whole evaluation with their context.
type Client struct {
	baseURL string
	doer    HTTPDoer
	logger  *slog.Logger
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 2
	}
	ec := pester.NewExtendedClient(&http.Client{Timeout: timeout})
	ec.MaxRetries = retries
	ec.Concurrency = 1
	ec.Backoff = pester.ExponentialBackoff
	return NewClientWithDoer(cfg.BaseURL, ec, cfg.Logger)
}

func NewClientWithDoer(baseURL string, doer HTTPDoer, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		doer:    doer,
		logger:  logger,
	}
}

type eligibilityResponse struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

func (c *Client) IsEligible(ctx context.Context, voterID string, electionID string) (bool, error) {
	endpoint := fmt.Sprintf("%s/v1/memberships/%s/eligibility?election_id=%s",
		c.baseURL,
		url.PathEscape(strings.TrimSpace(voterID)),
		url.QueryEscape(strings.TrimSpace(electionID)),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.doer.Do(req)
	if err != nil {
		return false, fmt.Errorf("membership eligibility request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("membership eligibility status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload eligibilityResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return false, fmt.Errorf("decode membership eligibility: %w", err)
	}
	if !payload.Eligible {
		c.logger.Debug("membership service denied eligibility",
			"event", "election_membership_not_eligible",
			"module", "governance/election-service",
			"layer", "adapter",
			"election_id", strings.TrimSpace(electionID),
			"reason", payload.Reason,
		)
	}
	return payload.Eligible, nil
}

var _ ports.EligibilityChecker = (*Client)(nil)
