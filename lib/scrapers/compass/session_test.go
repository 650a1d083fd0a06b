package compass

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakePortal is a minimal stand-in for the upstream portal: a form login
// with hidden state, a redirect to home on success, and envelope-wrapped
// service endpoints behind a session cookie.
type fakePortal struct {
	t          *testing.T
	password   string
	loginPosts int
}

func (p *fakePortal) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/login.aspx", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, `<html><body><form method="post">
				<input type="hidden" name="__VIEWSTATE" value="state-token"/>
				<input type="text" name="username"/>
				<input type="password" name="password"/>
			</form></body></html>`)
			return
		}

		p.loginPosts++
		require.NoError(p.t, r.ParseForm())
		// the hidden field and the injected defaults must be replayed
		require.Equal(p.t, "state-token", r.PostForm.Get("__VIEWSTATE"))
		require.Equal(p.t, "button1", r.PostForm.Get("__EVENTTARGET"))
		require.Equal(p.t, "on", r.PostForm.Get("rememberMeChk"))

		if r.PostForm.Get("password") != p.password {
			fmt.Fprint(w, `<html><body>
				<span id="errorText">Sorry - your details were incorrect</span>
				<form><input name="username"/></form>
			</body></html>`)
			return
		}

		http.SetCookie(w, &http.Cookie{Name: "ASP.NET_SessionId", Value: "session-1"})
		http.Redirect(w, r, "/home.aspx", http.StatusFound)
	})

	mux.HandleFunc("/home.aspx", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><script>
			var Compass = { organisationUserId: 7241, schoolConfigKey: 'mvhs-prod' };
		</script></head><body>home</body></html>`)
	})

	mux.HandleFunc("/Services/Calendar.svc/GetCalendarEventsByUser", func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("ASP.NET_SessionId")
		if err != nil || cookie.Value != "session-1" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("content-type", "application/json")
		fmt.Fprint(w, `{"d": [
			{"activityId": 10, "title": "Maths"},
			{"activityId": 11, "title": "Physics"}
		]}`)
	})

	mux.HandleFunc("/Services/User.svc/GetUserDetailsBlobByUserId", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(p.t, "XMLHttpRequest", r.Header.Get("x-requested-with"))
		w.Header().Set("content-type", "application/json")
		fmt.Fprint(w, `{"d": {"userId": 7241, "userFullName": "Alex Nguyen"}}`)
	})

	return mux
}

func newTestClient(t *testing.T, server *httptest.Server, password string) *SessionClient {
	client, err := NewSessionClient(context.Background(), Options{
		BaseUrl:     server.URL,
		Credentials: Credentials{Username: "anguyen", Password: password},
	})
	require.NoError(t, err)
	return client
}

func TestSessionLoginAndFetch(t *testing.T) {
	portal := &fakePortal{t: t, password: "hunter2"}
	server := httptest.NewServer(portal.handler())
	defer server.Close()

	client := newTestClient(t, server, "hunter2")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	err := client.Login(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, portal.loginPosts)
	require.EqualValues(t, 7241, client.userId)
	require.Equal(t, "mvhs-prod", client.schoolConfigKey)

	events, err := client.GetCalendarEvents(ctx, time.Now(), time.Now().AddDate(0, 0, 7), 50)
	require.NoError(t, err)
	require.Len(t, events, 2)

	details, err := client.GetUserDetails(ctx, 0)
	require.NoError(t, err)
	require.Contains(t, string(details), "Alex Nguyen")
}

func TestSessionLoginRejected(t *testing.T) {
	portal := &fakePortal{t: t, password: "hunter2"}
	server := httptest.NewServer(portal.handler())
	defer server.Close()

	client := newTestClient(t, server, "wrong")
	err := client.Login(context.Background())

	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, "Sorry - your details were incorrect", authErr.Message)
	require.Contains(t, authErr.Body, "errorText")
	require.False(t, authErr.Challenged())
}

func TestSessionChallengeDetection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>Checking your browser before accessing. __cf_chl_jschl_tk</body></html>`)
	}))
	defer server.Close()

	client := newTestClient(t, server, "hunter2")
	err := client.Login(context.Background())

	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	require.True(t, authErr.Challenged())
}

func TestFetchBeforeLogin(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	client := newTestClient(t, server, "hunter2")

	_, err := client.GetCalendarEvents(context.Background(), time.Now(), time.Now(), 10)
	require.True(t, errors.Is(err, ErrNotAuthenticated))

	_, err = client.GetUserDetails(context.Background(), 0)
	require.True(t, errors.Is(err, ErrNotAuthenticated))
}

func TestUnwrapEnvelope(t *testing.T) {
	obj, err := unwrapObject([]byte(`{"d": {"a": 1}}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"a": 1}`, string(obj))

	obj, err = unwrapObject([]byte(`{"d": null}`))
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(obj))

	obj, err = unwrapObject([]byte(`{"a": 2}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"a": 2}`, string(obj))

	list, err := unwrapList([]byte(`{"d": [{"a": 1}]}`))
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = unwrapList([]byte(`{"d": null}`))
	require.NoError(t, err)
	require.Empty(t, list)

	// a non-list payload inside the envelope degrades to an empty list
	list, err = unwrapList([]byte(`{"d": {"a": 1}}`))
	require.NoError(t, err)
	require.Empty(t, list)

	list, err = unwrapList([]byte(`[{"a": 1}, {"b": 2}]`))
	require.NoError(t, err)
	require.Len(t, list, 2)

	_, err = unwrapList([]byte(`"nope"`))
	require.Error(t, err)
}
