package compass

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"schoolsync-backend/lib/configutil"

	"github.com/stretchr/testify/require"
)

func TestBrowserOptionDefaults(t *testing.T) {
	opts := BrowserOptions{}.withDefaults()
	require.Equal(t, time.Second*60, opts.ChallengeWait)
	require.Equal(t, time.Second*40, opts.NavigationWait)

	custom := BrowserOptions{ChallengeWait: time.Second * 5}.withDefaults()
	require.Equal(t, time.Second*5, custom.ChallengeWait)
}

func TestLooksLikeChallenge(t *testing.T) {
	require.True(t, looksLikeChallenge(`<html>Checking your browser before accessing</html>`))
	require.True(t, looksLikeChallenge(`<script src="/cdn-cgi/challenge-platform/__cf_chl.js"></script>`))
	require.False(t, looksLikeChallenge(`<html><form><input name="username"/></form></html>`))
}

func TestShouldEscalate(t *testing.T) {
	challenge := &AuthenticationError{Body: "Checking your browser before accessing"}
	require.True(t, shouldEscalate(challenge))

	badCreds := &AuthenticationError{Message: "your details were incorrect", Body: "<html></html>"}
	require.False(t, shouldEscalate(badCreds))

	require.True(t, shouldEscalate(&SessionError{Reason: "no user id"}))
	require.False(t, shouldEscalate(errors.New("dial tcp: connection refused")))
	require.False(t, shouldEscalate(&TransportError{Op: "x", Err: errors.New("timeout")}))
}

type e2eConfig struct {
	BaseUrl    string `json:"base_url"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	ProfileDir string `json:"profile_dir"`
}

// exercises a real Chromium against a live portal. gated on a local config
// file so it never runs in CI.
func TestBrowserLoginE2E(t *testing.T) {
	cfg, err := configutil.ReadConfig[e2eConfig]("compass_e2e.json5")
	if os.IsNotExist(err) {
		t.Skip("no compass_e2e.json5, skipping live browser test")
	}
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute*3)
	defer cancel()

	client, err := NewBrowserClient(ctx, Options{
		BaseUrl:     cfg.BaseUrl,
		Credentials: Credentials{Username: cfg.Username, Password: cfg.Password},
		Browser:     BrowserOptions{ProfileDir: cfg.ProfileDir, Headless: true},
	})
	require.NoError(t, err)
	defer client.Close(ctx)

	err = client.Login(ctx)
	require.NoError(t, err)

	events, err := client.GetCalendarEvents(ctx, time.Now(), time.Now().AddDate(0, 0, 7), 50)
	require.NoError(t, err)
	t.Logf("fetched %d events", len(events))
}
