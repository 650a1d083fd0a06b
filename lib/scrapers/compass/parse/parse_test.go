package parse

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func rawEvent(overrides map[string]any) json.RawMessage {
	base := map[string]any{
		"activityId":    101,
		"title":         "Maths",
		"description":   "Period 3",
		"start":         "2026-03-02T23:00:00Z",
		"finish":        "2026-03-02T23:50:00Z",
		"guid":          "2b6e9d5e-9f7a-4a1f-8a36-0f1d4c2e2d11",
		"runningStatus": 0,
		"allDay":        false,
	}
	for k, v := range overrides {
		if v == nil {
			delete(base, k)
			continue
		}
		base[k] = v
	}
	raw, err := json.Marshal(base)
	if err != nil {
		panic(err)
	}
	return raw
}

func TestObjectValid(t *testing.T) {
	event, err := Object[Event](rawEvent(nil))
	require.NoError(t, err)
	require.EqualValues(t, 101, event.ActivityId)
	require.Equal(t, "Maths", event.Title)
	require.Equal(t, time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC), event.Start.Time)
}

func TestObjectMissingFields(t *testing.T) {
	_, err := Object[Event](rawEvent(map[string]any{"guid": nil, "title": nil}))

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Len(t, parseErr.Fields, 2)
	require.NotEmpty(t, parseErr.Raw)

	fields := []string{parseErr.Fields[0].Field, parseErr.Fields[1].Field}
	require.Contains(t, fields, "guid")
	require.Contains(t, fields, "title")
}

func TestObjectNullIsMissing(t *testing.T) {
	_, err := Object[Event](rawEvent(map[string]any{"guid": json.RawMessage("null")}))

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestObjectNotAnObject(t *testing.T) {
	_, err := Object[Event](json.RawMessage(`[1, 2]`))

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Equal(t, "(root)", parseErr.Fields[0].Field)
}

func TestListStrictReportsIndex(t *testing.T) {
	items := []json.RawMessage{
		rawEvent(nil),
		rawEvent(map[string]any{"guid": nil}),
		rawEvent(nil),
	}

	_, err := List[Event](items)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Equal(t, 1, parseErr.Index)
}

func TestSafePartitionsInput(t *testing.T) {
	items := []json.RawMessage{
		rawEvent(map[string]any{"title": "First"}),
		rawEvent(map[string]any{"start": nil}),
		rawEvent(map[string]any{"title": "Third"}),
		json.RawMessage(`"not an object"`),
	}

	valid, errs := Safe[Event](items)
	require.Equal(t, len(items), len(valid)+len(errs))
	require.Len(t, valid, 2)

	// valid items keep their relative order
	require.Equal(t, "First", valid[0].Title)
	require.Equal(t, "Third", valid[1].Title)

	require.Equal(t, 1, errs[0].Index)
	require.Equal(t, 3, errs[1].Index)
}

func TestInstantFormats(t *testing.T) {
	var withOffset, withoutOffset Instant
	require.NoError(t, json.Unmarshal([]byte(`"2026-03-02T23:00:00Z"`), &withOffset))
	require.NoError(t, json.Unmarshal([]byte(`"2026-03-02T23:00:00"`), &withoutOffset))

	// offset-less stamps are already UTC upstream
	require.True(t, withOffset.Equal(withoutOffset.Time))
	require.Equal(t, time.UTC, withoutOffset.Location())

	var plus Instant
	require.NoError(t, json.Unmarshal([]byte(`"2026-03-03T10:00:00+11:00"`), &plus))
	require.Equal(t, time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC), plus.Time)

	var bad Instant
	require.Error(t, json.Unmarshal([]byte(`"02/03/2026"`), &bad))
	require.Error(t, json.Unmarshal([]byte(`12345`), &bad))
}

func TestSoftString(t *testing.T) {
	var event Event
	raw := rawEvent(map[string]any{"location": "Room 12B"})
	require.NoError(t, json.Unmarshal(raw, &event))
	require.True(t, event.Location.Ok)
	require.Equal(t, "Room 12B", event.Location.Value)

	// a numeric location id is absence, not an error
	raw = rawEvent(map[string]any{"location": 44})
	require.NoError(t, json.Unmarshal(raw, &event))
	require.False(t, event.Location.Ok)

	// an explicit null is absence too, not an empty string
	event = Event{}
	raw = rawEvent(map[string]any{"location": json.RawMessage("null")})
	require.NoError(t, json.Unmarshal(raw, &event))
	require.False(t, event.Location.Ok)
	require.Empty(t, event.Location.Value)
}

func TestUserValidation(t *testing.T) {
	user, err := Object[User](json.RawMessage(`{"userId": 7241, "userFullName": "Alex Nguyen"}`))
	require.NoError(t, err)
	require.EqualValues(t, 7241, user.UserId)

	_, err = Object[User](json.RawMessage(`{"userFullName": "Alex Nguyen"}`))
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Equal(t, "userId", parseErr.Fields[0].Field)
}

func TestEventFinishBeforeStart(t *testing.T) {
	_, err := Object[Event](rawEvent(map[string]any{
		"start":  "2026-03-02T23:50:00Z",
		"finish": "2026-03-02T23:00:00Z",
	}))
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Equal(t, "finish", parseErr.Fields[0].Field)
}
