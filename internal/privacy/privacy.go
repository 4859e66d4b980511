// Package privacy strips credentials and secrets from URLs and messages before
// they reach logs, telemetry or API responses.
package privacy

import (
	"net/url"
	"regexp"
	"strings"
)

// Pre-compiled patterns
var (
	// URL pattern for finding URLs in text, including shoutrrr service URLs
	urlPattern = regexp.MustCompile(`\b[a-z][a-z0-9+.\-]*://[^\s"']+`)

	// token-like query or key=value pairs outside URLs
	secretPattern = regexp.MustCompile(`(?i)\b(api[_-]?key|token|password|passwd|secret)=([^\s&"']+)`)
)

const redacted = "[REDACTED]"

// ScrubMessage removes credentials from every URL in message and masks
// key=value secrets.
func ScrubMessage(message string) string {
	message = urlPattern.ReplaceAllStringFunc(message, RedactURL)
	return secretPattern.ReplaceAllString(message, "$1="+redacted)
}

// RedactURL keeps scheme, host and path of a URL but replaces user info and
// query values. Unparseable input is returned fully redacted.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return redacted
	}
	if u.User != nil {
		u.User = url.User(redacted)
	}
	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			q.Set(k, redacted)
		}
		u.RawQuery = q.Encode()
	}
	// url.URL escapes the brackets; restore them for readability.
	out := u.String()
	out = strings.ReplaceAll(out, "%5BREDACTED%5D", redacted)
	return out
}

// SanitizeStreamURL reduces a stream URL (rtsp, rtmp, http) to scheme://host:port
// for display. Non-URL input is returned unchanged.
func SanitizeStreamURL(source string) string {
	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return source
	}
	return u.Scheme + "://" + u.Host
}

// SanitizeArgs applies SanitizeStreamURL to every argument that looks like a URL.
func SanitizeArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if strings.Contains(a, "://") {
			out[i] = SanitizeStreamURL(a)
			continue
		}
		out[i] = a
	}
	return out
}
