package gradebook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	scoreContentType = "application/vnd.ims.lis.v1.score+json"
	scopeScore       = "https://purl.imsglobal.org/spec/lti-ags/scope/score"
)

// Score is an LTI AGS score publication.
type Score struct {
	UserID           string
	ScoreGiven       float64
	ScoreMaximum     float64
	Comment          string
	ActivityProgress string
	GradingProgress  string
	Timestamp        time.Time
}

type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// Client posts scores to AGS line items, authenticating with the OAuth2
// client-credentials grant.
type Client struct {
	http *http.Client
}

func New(cfg Config) *Client {
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       []string{scopeScore},
	}
	h := cc.Client(context.Background())
	if cfg.Timeout > 0 {
		h.Timeout = cfg.Timeout
	}
	return &Client{http: h}
}

// PostScore sends s to {lineItemURL}/scores.
func (c *Client) PostScore(ctx context.Context, lineItemURL string, s Score) error {
	body, err := json.Marshal(map[string]any{
		"userId":           s.UserID,
		"scoreGiven":       s.ScoreGiven,
		"scoreMaximum":     s.ScoreMaximum,
		"comment":          s.Comment,
		"activityProgress": s.ActivityProgress,
		"gradingProgress":  s.GradingProgress,
		"timestamp":        s.Timestamp.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return errors.Wrap(err, "encode score")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, scoresURL(lineItemURL), bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build score request")
	}
	req.Header.Set("Content-Type", scoreContentType)
	res, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "post score")
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return errors.Errorf("post score: %s", res.Status)
	}
	return nil
}

// scoresURL appends the scores path, keeping any query string on the line item URL.
func scoresURL(lineItemURL string) string {
	base, query, _ := strings.Cut(lineItemURL, "?")
	out := strings.TrimSuffix(base, "/") + "/scores"
	if query != "" {
		out += "?" + query
	}
	return out
}
