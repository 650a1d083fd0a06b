package compass

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MockClient serves canned portal responses from a fixture directory. It
// exists so the pipeline downstream of the scraper can run end to end
// without credentials or a live portal.
type MockClient struct {
	dir           string
	authenticated bool
}

func NewMockClient(dir string) (*MockClient, error) {
	if dir == "" {
		return nil, fmt.Errorf("mock client requires a fixture directory")
	}
	_, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("mock fixture directory: %w", err)
	}
	return &MockClient{dir: dir}, nil
}

func (c *MockClient) Login(ctx context.Context) error {
	c.authenticated = true
	return nil
}

func (c *MockClient) load(name string) ([]byte, error) {
	body, err := os.ReadFile(filepath.Join(c.dir, name))
	if err != nil {
		return nil, fmt.Errorf("mock fixture %s: %w", name, err)
	}
	return body, nil
}

func (c *MockClient) GetUserDetails(ctx context.Context, targetUserId int64) (json.RawMessage, error) {
	if !c.authenticated {
		return nil, ErrNotAuthenticated
	}
	body, err := c.load("user_details.json")
	if err != nil {
		return nil, err
	}
	return unwrapObject(body)
}

func (c *MockClient) GetCalendarEvents(ctx context.Context, start, end time.Time, limit int) ([]json.RawMessage, error) {
	if !c.authenticated {
		return nil, ErrNotAuthenticated
	}
	body, err := c.load("calendar_events.json")
	if err != nil {
		return nil, err
	}
	events, err := unwrapList(body)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (c *MockClient) Close(ctx context.Context) error {
	c.authenticated = false
	return nil
}
