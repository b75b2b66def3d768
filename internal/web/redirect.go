package web

import (
	"net/url"
	"strings"
)

// DefaultAfterLogin is where a successful login lands without a redirect.
const DefaultAfterLogin = "/user"

// SafeRedirect returns target when it is a same-origin absolute path and
// fallback otherwise. Scheme-relative and backslash tricks are refused.
func SafeRedirect(target, fallback string) string {
	if target == "" || !strings.HasPrefix(target, "/") {
		return fallback
	}
	if strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return fallback
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	return target
}
