package auth

import (
	"fmt"
	"io"
	"net/url"
	"strings"
)

// WriteCookieGuide explains how to copy the session cookies out of a browser
func WriteCookieGuide(w io.Writer) {
	rule := strings.Repeat("=", 72)
	lines := []string{
		rule,
		"INSTAGRAM SESSION COOKIES",
		rule,
		"",
		"The monitor reads followers and followees through a logged-in web session.",
		"",
		"1. Log in at https://www.instagram.com in your browser.",
		"2. Open the developer tools (F12, or Cmd+Option+I on a Mac).",
		"3. Network tab: reload, click any request to instagram.com and copy",
		"   the whole 'Cookie:' request header.",
		"   Or Application/Storage tab: Cookies > https://www.instagram.com and",
		"   copy the values of sessionid, csrftoken and ds_user_id.",
		"",
		"You can paste either the whole Cookie header or the single values.",
		"",
		"These cookies give full access to the account. They are stored in the",
		"system keyring when one is available and in an encrypted file otherwise.",
		"They expire, so log in again when requests start failing with",
		"'authentication required'.",
		rule,
		"",
	}
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
}

// ParseCookieHeader extracts the session cookies from a pasted Cookie header.
// It returns nil when no sessionid is present.
func ParseCookieHeader(header string) *Account {
	header = strings.TrimSpace(header)
	header = strings.TrimPrefix(header, "Cookie:")
	header = strings.TrimPrefix(header, "cookie:")

	account := &Account{}
	for _, part := range strings.Split(header, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"`)
		switch strings.TrimSpace(name) {
		case "sessionid":
			account.SessionID = value
		case "csrftoken":
			account.CSRFToken = value
		case "ds_user_id":
			account.UserID = value
		}
	}
	if account.SessionID == "" {
		return nil
	}
	return account
}

// UserIDFromSession recovers the numeric user id embedded in a sessionid
// value, which starts with "<id>%3A" (or "<id>:" once unescaped)
func UserIDFromSession(sessionID string) string {
	if unescaped, err := url.QueryUnescape(sessionID); err == nil {
		sessionID = unescaped
	}
	id, _, ok := strings.Cut(sessionID, ":")
	if !ok {
		return ""
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return id
}
