package compass

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// the ASP.NET postback machinery expects these even when the served page
// doesn't render them
var defaultPostbackMarkers = map[string]string{
	"__EVENTTARGET":   "button1",
	"__EVENTARGUMENT": "",
}

// extractFormFields collects every <input> inside the login form as an
// opaque name -> value map. The field set is never hardcoded beyond the
// postback markers: hidden fields like __VIEWSTATE change between portal
// versions and all of them must be replayed for the POST to be accepted.
func extractFormFields(doc *goquery.Document) map[string]string {
	fields := map[string]string{}

	doc.Find("form input").Each(func(_ int, input *goquery.Selection) {
		name, ok := input.Attr("name")
		if !ok || name == "" {
			return
		}
		fields[name] = input.AttrOr("value", "")
	})

	for marker, fallback := range defaultPostbackMarkers {
		if _, ok := fields[marker]; !ok {
			fields[marker] = fallback
		}
	}

	return fields
}

// places the portal is known to surface login failure text
var errorSelectors = []string{
	"#errorText",
	".login-error",
	"span.error",
	"#message",
}

// extractLoginError pulls a human-readable failure reason out of a login
// page that was served back after a rejected POST.
func extractLoginError(doc *goquery.Document) string {
	for _, selector := range errorSelectors {
		text := strings.TrimSpace(doc.Find(selector).First().Text())
		if text != "" {
			return text
		}
	}
	return ""
}
