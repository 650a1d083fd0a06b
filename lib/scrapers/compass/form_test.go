package compass

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const loginPage = `
<html><body>
<form method="post" action="/login.aspx">
	<input type="hidden" name="__VIEWSTATE" value="dDwtMTg4MzE4"/>
	<input type="hidden" name="__VIEWSTATEGENERATOR" value="C2EE9ABB"/>
	<input type="hidden" name="clientstate" value="xy=1"/>
	<input type="text" name="username" value=""/>
	<input type="password" name="password" value=""/>
	<input type="checkbox" name="rememberMeChk"/>
	<input type="submit" name="button1" value="Sign in"/>
</form>
</body></html>
`

func TestExtractFormFields(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(loginPage))
	require.NoError(t, err)

	fields := extractFormFields(doc)

	// every served input must survive untouched
	require.Equal(t, "dDwtMTg4MzE4", fields["__VIEWSTATE"])
	require.Equal(t, "C2EE9ABB", fields["__VIEWSTATEGENERATOR"])
	require.Equal(t, "xy=1", fields["clientstate"])
	require.Contains(t, fields, "username")
	require.Contains(t, fields, "password")

	// postback markers get injected when the page doesn't render them
	require.Equal(t, "button1", fields["__EVENTTARGET"])
	require.Equal(t, "", fields["__EVENTARGUMENT"])
}

func TestExtractFormFieldsKeepsServedMarkers(t *testing.T) {
	page := `<form>
		<input type="hidden" name="__EVENTTARGET" value="loginBtn"/>
		<input type="text" name="username"/>
	</form>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)

	fields := extractFormFields(doc)
	require.Equal(t, "loginBtn", fields["__EVENTTARGET"])
}

func TestExtractLoginError(t *testing.T) {
	page := `<html><body>
		<span id="errorText">  Sorry - your username or password was incorrect.  </span>
	</body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)

	require.Equal(t, "Sorry - your username or password was incorrect.", extractLoginError(doc))

	empty, err := goquery.NewDocumentFromReader(strings.NewReader("<html></html>"))
	require.NoError(t, err)
	require.Equal(t, "", extractLoginError(empty))
}
