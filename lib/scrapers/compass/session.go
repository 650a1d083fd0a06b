package compass

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"schoolsync-backend/lib/htmlutil"
	"schoolsync-backend/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/codes"
)

const (
	loginPath    = "/login.aspx?sessionstate=disabled"
	homePath     = "/home.aspx"
	userPath     = "/Services/User.svc/GetUserDetailsBlobByUserId"
	calendarPath = "/Services/Calendar.svc/GetCalendarEventsByUser?sessionstate=readonly&ExcludeNonRelevantPd=true"
)

// SessionClient completes the login handshake by replaying the portal's own
// form POST over plain HTTP. It is the cheap strategy for the common case
// where no bot challenge is interposed.
type SessionClient struct {
	baseUrl *url.URL
	http    *resty.Client
	creds   Credentials

	userId          int64
	schoolConfigKey string
	authenticated   bool
}

func NewSessionClient(ctx context.Context, opts Options) (*SessionClient, error) {
	baseUrl, err := url.Parse(strings.TrimRight(opts.BaseUrl, "/"))
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(baseUrl.String())
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", userAgent)
	client.SetHeader("accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	client.SetHeader("accept-language", "en-AU,en;q=0.9")
	client.SetHeader("dnt", "1")
	client.SetHeader("upgrade-insecure-requests", "1")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetTimeout(time.Second * 30)

	telemetry.InstrumentResty(client, "scrapers/compass/http")

	return &SessionClient{
		baseUrl: baseUrl,
		http:    client,
		creds:   opts.Credentials,
	}, nil
}

func (c *SessionClient) Login(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "session:Login")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		Get(loginPath)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch login page")
		return &TransportError{Op: "fetch login page", Err: err}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse login page html")
		return err
	}

	fields := extractFormFields(doc)
	fields["username"] = c.creds.Username
	fields["password"] = c.creds.Password
	fields["rememberMeChk"] = "on"

	res, err = c.http.R().
		SetContext(ctx).
		SetHeader("referer", c.baseUrl.String()+loginPath).
		SetHeader("origin", c.baseUrl.String()).
		SetFormData(fields).
		Post(loginPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit login form")
		return &TransportError{Op: "submit login form", Err: err}
	}

	// a successful login redirects away from login.aspx; landing back on
	// it means the handshake was rejected
	finalUrl := res.RawResponse.Request.URL.String()
	if strings.Contains(strings.ToLower(finalUrl), "login.aspx") {
		body := string(res.Body())
		message := ""
		doc, err := goquery.NewDocumentFromReader(bytes.NewBufferString(body))
		if err == nil {
			message = extractLoginError(doc)
		}
		if message == "" {
			message = "invalid credentials or server error"
		}
		authErr := &AuthenticationError{Message: message, Body: body}
		span.RecordError(authErr)
		span.SetStatus(codes.Error, "login rejected")
		return authErr
	}

	c.extractIdentity(res.Body())
	c.authenticated = true
	return nil
}

var (
	userIdPattern    = regexp.MustCompile(`organisationUserId["']?\s*[:=]\s*(\d+)`)
	configKeyPattern = regexp.MustCompile(`schoolConfigKey["']?\s*[:=]\s*["']([^"']+)["']`)
)

// extractIdentity searches inline script content for the numeric user id
// and tenant config key that every service endpoint requires.
func (c *SessionClient) extractIdentity(body []byte) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(body))
	if err != nil {
		return
	}

	for _, script := range doc.Find("script").Nodes {
		text := htmlutil.GetText(script)

		if c.userId == 0 {
			groups := userIdPattern.FindStringSubmatch(text)
			if len(groups) == 2 {
				id, err := strconv.ParseInt(groups[1], 10, 64)
				if err == nil {
					c.userId = id
				}
			}
		}
		if c.schoolConfigKey == "" {
			groups := configKeyPattern.FindStringSubmatch(text)
			if len(groups) == 2 {
				c.schoolConfigKey = groups[1]
			}
		}
	}
}

// ensureIdentity retries identity extraction once against the home page.
// the login response doesn't always inline the session scripts.
func (c *SessionClient) ensureIdentity(ctx context.Context) error {
	if c.userId != 0 {
		return nil
	}

	res, err := c.http.R().
		SetContext(ctx).
		Get(homePath)
	if err != nil {
		return &TransportError{Op: "fetch home page", Err: err}
	}
	c.extractIdentity(res.Body())

	if c.userId == 0 {
		return &SessionError{Reason: "could not extract organisation user id"}
	}
	return nil
}

func (c *SessionClient) GetUserDetails(ctx context.Context, targetUserId int64) (json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "session:GetUserDetails")
	defer span.End()

	if !c.authenticated {
		return nil, ErrNotAuthenticated
	}
	err := c.ensureIdentity(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if targetUserId == 0 {
		targetUserId = c.userId
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("content-type", "application/json").
		SetHeader("x-requested-with", "XMLHttpRequest").
		SetBody(map[string]int64{"targetUserId": targetUserId}).
		Post(userPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch user details")
		return nil, &TransportError{Op: "fetch user details", Err: err}
	}

	return unwrapObject(res.Body())
}

func (c *SessionClient) GetCalendarEvents(ctx context.Context, start, end time.Time, limit int) ([]json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "session:GetCalendarEvents")
	defer span.End()

	if !c.authenticated {
		return nil, ErrNotAuthenticated
	}
	err := c.ensureIdentity(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("content-type", "application/json").
		SetHeader("x-requested-with", "XMLHttpRequest").
		SetBody(newCalendarRequest(c.userId, start, end, limit)).
		Post(calendarPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch calendar events")
		return nil, &TransportError{Op: "fetch calendar events", Err: err}
	}

	return unwrapList(res.Body())
}

func (c *SessionClient) Close(ctx context.Context) error {
	return nil
}
