package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/devchilll/scope/internal/iam"
)

// RemoteScorer calls an external scoring oracle over HTTP. The oracle sees
// the utterance plus the caller's role so it can judge role-appropriateness;
// transport or protocol failures surface as ErrScorerUnavailable.
type RemoteScorer struct {
	baseURL string
	client  *http.Client
}

// NewRemoteScorer builds a client for the oracle at baseURL. The timeout
// bounds the whole request; zero means 10 seconds.
func NewRemoteScorer(baseURL string, timeout time.Duration) *RemoteScorer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RemoteScorer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type scoreRequest struct {
	Text      string `json:"text"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	Timestamp string `json:"timestamp"`
}

// Score posts the utterance to the oracle and decodes its verdict. An
// analysis with out-of-range scores is rejected here rather than passed
// downstream.
func (s *RemoteScorer) Score(ctx context.Context, text string, principal iam.Principal) (Analysis, error) {
	body, err := json.Marshal(scoreRequest{
		Text:      text,
		UserID:    principal.ID,
		Role:      string(principal.Role),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Analysis{}, fmt.Errorf("%w: encode request: %v", ErrScorerUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/score", bytes.NewReader(body))
	if err != nil {
		return Analysis{}, fmt.Errorf("%w: build request: %v", ErrScorerUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Analysis{}, fmt.Errorf("%w: %v", ErrScorerUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return Analysis{}, fmt.Errorf("%w: oracle returned %d", ErrScorerUnavailable, resp.StatusCode)
	}

	var a Analysis
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
		return Analysis{}, fmt.Errorf("%w: decode response: %v", ErrScorerUnavailable, err)
	}
	if !a.Valid() {
		return Analysis{}, fmt.Errorf("%w: oracle returned scores outside [0,1]", ErrScorerUnavailable)
	}
	return a, nil
}
