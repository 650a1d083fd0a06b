package compass

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

// fallbackClient tries the cheap HTTP strategy first and escalates to a
// real browser when login fails in a way that smells like a bot challenge.
type fallbackClient struct {
	opts   Options
	active Client
}

func newFallbackClient(ctx context.Context, opts Options) (*fallbackClient, error) {
	session, err := NewSessionClient(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &fallbackClient{opts: opts, active: session}, nil
}

func (c *fallbackClient) Login(ctx context.Context) error {
	err := c.active.Login(ctx)
	if err == nil {
		return nil
	}
	if !shouldEscalate(err) {
		return err
	}

	slog.InfoContext(ctx, "http login blocked, escalating to browser", "cause", err)
	closeErr := c.active.Close(ctx)
	if closeErr != nil {
		slog.WarnContext(ctx, "closing http client", "err", closeErr)
	}

	browser, err := NewBrowserClient(ctx, c.opts)
	if err != nil {
		return err
	}
	c.active = browser
	return c.active.Login(ctx)
}

// shouldEscalate reports whether the browser strategy could plausibly
// succeed where HTTP replay did not. Rejected credentials escalate to
// nothing but a slower rejection, so those stay terminal.
func shouldEscalate(err error) bool {
	var authErr *AuthenticationError
	if errors.As(err, &authErr) {
		return authErr.Challenged()
	}
	var sessionErr *SessionError
	return errors.As(err, &sessionErr)
}

func (c *fallbackClient) GetUserDetails(ctx context.Context, targetUserId int64) (json.RawMessage, error) {
	return c.active.GetUserDetails(ctx, targetUserId)
}

func (c *fallbackClient) GetCalendarEvents(ctx context.Context, start, end time.Time, limit int) ([]json.RawMessage, error) {
	return c.active.GetCalendarEvents(ctx, start, end, limit)
}

func (c *fallbackClient) Close(ctx context.Context) error {
	return c.active.Close(ctx)
}
