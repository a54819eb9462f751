package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tribes-lab/backend/internal/model"
)

// Caller reads posts from another running instance's HTTP API. It is an
// optional lookup tier; a nil *Caller disables it.
type Caller struct {
	endpoint string
	client   *http.Client
}

// NewCaller returns nil when no endpoint is configured, which callers treat
// as the tier being absent.
func NewCaller(endpoint string) *Caller {
	if endpoint == "" {
		return nil
	}

	return &Caller{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Caller) GetPost(ctx context.Context, id string) (*model.Post, error) {
	target := fmt.Sprintf("%s/api/posts/%s", c.endpoint, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("posts api returned status %d", resp.StatusCode)
	}

	var body struct {
		Post model.Post `json:"post"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}

	return &body.Post, nil
}
