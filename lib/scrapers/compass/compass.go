package compass

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("scrapers/compass")

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/142.0.0.0 Safari/537.36"

// Client is the capability surface shared by every login strategy. The
// fetch methods return raw JSON so the ingestion ledger can store payloads
// verbatim; validation happens downstream in the parse package.
type Client interface {
	Login(ctx context.Context) error
	// GetUserDetails fetches the detail blob for targetUserId, or for the
	// logged-in user when targetUserId is zero.
	GetUserDetails(ctx context.Context, targetUserId int64) (json.RawMessage, error)
	GetCalendarEvents(ctx context.Context, start, end time.Time, limit int) ([]json.RawMessage, error)
	Close(ctx context.Context) error
}

type Credentials struct {
	Username string
	Password string
}

type Mode string

const (
	// ModeSession replays the login form over plain HTTP.
	ModeSession Mode = "session"
	// ModeBrowser drives a real Chromium through the handshake.
	ModeBrowser Mode = "browser"
	// ModeAuto tries the session strategy and falls back to the browser
	// when the portal serves a bot challenge instead of the login form.
	ModeAuto Mode = "auto"
	// ModeMock serves fixtures from disk, for tests and offline dev.
	ModeMock Mode = "mock"
)

type Options struct {
	BaseUrl     string
	Credentials Credentials
	Mode        Mode
	Browser     BrowserOptions
	// MockDataDir is only consulted in ModeMock.
	MockDataDir string
}

// NewClient selects a login strategy explicitly. ModeAuto returns a client
// that falls back from session to browser transparently on challenge.
func NewClient(ctx context.Context, opts Options) (Client, error) {
	switch opts.Mode {
	case ModeSession, "":
		return NewSessionClient(ctx, opts)
	case ModeBrowser:
		return NewBrowserClient(ctx, opts)
	case ModeAuto:
		return newFallbackClient(ctx, opts)
	case ModeMock:
		return NewMockClient(opts.MockDataDir)
	}
	return nil, fmt.Errorf("unknown client mode: %q", opts.Mode)
}

// the calendar/user services wrap their JSON payload in a "d" envelope,
// except when they don't and return it bare.
type envelope struct {
	D json.RawMessage `json:"d"`
}

func isNullish(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// unwrapObject extracts the payload object from an envelope-wrapped or bare
// response body. An envelope without a payload yields an empty object, not
// an error.
func unwrapObject(body []byte) (json.RawMessage, error) {
	var probe map[string]json.RawMessage
	err := json.Unmarshal(body, &probe)
	if err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}

	d, wrapped := probe["d"]
	if !wrapped {
		return json.RawMessage(body), nil
	}
	if isNullish(d) {
		return json.RawMessage("{}"), nil
	}
	return d, nil
}

// unwrapList extracts the payload array from an envelope-wrapped or bare
// response body. An envelope without a list payload yields an empty list.
func unwrapList(body []byte) ([]json.RawMessage, error) {
	var probe map[string]json.RawMessage
	err := json.Unmarshal(body, &probe)
	if err == nil {
		d, wrapped := probe["d"]
		if !wrapped || isNullish(d) {
			return []json.RawMessage{}, nil
		}
		var items []json.RawMessage
		err = json.Unmarshal(d, &items)
		if err != nil {
			return []json.RawMessage{}, nil
		}
		return items, nil
	}

	var items []json.RawMessage
	err = json.Unmarshal(body, &items)
	if err != nil {
		return nil, fmt.Errorf("response is not a JSON array: %w", err)
	}
	return items, nil
}

const dateFormat = "2006-01-02"

// calendarRequest mirrors the body the portal's own frontend sends to
// Calendar.svc/GetCalendarEventsByUser. The limit is forwarded as a hint;
// whether the upstream honors it is the caller's business, so no
// client-side truncation happens anywhere.
type calendarRequest struct {
	UserId     int64   `json:"userId"`
	HomePage   bool    `json:"homePage"`
	ActivityId *int64  `json:"activityId"`
	LocationId *int64  `json:"locationId"`
	StaffIds   []int64 `json:"staffIds"`
	StartDate  string  `json:"startDate"`
	EndDate    string  `json:"endDate"`
	Page       int     `json:"page"`
	Start      int     `json:"start"`
	Limit      int     `json:"limit"`
}

func newCalendarRequest(userId int64, start, end time.Time, limit int) calendarRequest {
	return calendarRequest{
		UserId:    userId,
		HomePage:  true,
		StartDate: start.Format(dateFormat),
		EndDate:   end.Format(dateFormat),
		Page:      1,
		Start:     0,
		Limit:     limit,
	}
}
