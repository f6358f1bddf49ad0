package visits

import (
	"net/url"
	"strings"
)

// Browser and system buckets are closed sets; anything unmatched lands in
// "other". Stored bucket names double as map keys in the stats document.
const (
	BrowserChrome  = "chrome"
	BrowserEdge    = "edge"
	BrowserFirefox = "firefox"
	BrowserIE      = "ie"
	BrowserOpera   = "opera"
	BrowserSafari  = "safari"
	BrowserOther   = "other"

	SystemAndroid = "android"
	SystemIOS     = "ios"
	SystemLinux   = "linux"
	SystemMacOS   = "macos"
	SystemWindows = "windows"
	SystemOther   = "other"
)

// BrowserOf classifies a user-agent string into exactly one browser bucket.
// Order matters: Edge and Opera embed "Chrome", Chrome embeds "Safari".
func BrowserOf(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "edg/") || strings.Contains(ua, "edge/"):
		return BrowserEdge
	case strings.Contains(ua, "opr/") || strings.Contains(ua, "opera"):
		return BrowserOpera
	case strings.Contains(ua, "firefox/"):
		return BrowserFirefox
	case strings.Contains(ua, "msie") || strings.Contains(ua, "trident/"):
		return BrowserIE
	case strings.Contains(ua, "chrome/") || strings.Contains(ua, "crios/"):
		return BrowserChrome
	case strings.Contains(ua, "safari/"):
		return BrowserSafari
	default:
		return BrowserOther
	}
}

// SystemOf classifies a user-agent string into exactly one OS bucket.
// Android must be tested before Linux, iOS before macOS.
func SystemOf(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "android"):
		return SystemAndroid
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad") || strings.Contains(ua, "ipod"):
		return SystemIOS
	case strings.Contains(ua, "windows"):
		return SystemWindows
	case strings.Contains(ua, "mac os x") || strings.Contains(ua, "macintosh"):
		return SystemMacOS
	case strings.Contains(ua, "linux") || strings.Contains(ua, "x11"):
		return SystemLinux
	default:
		return SystemOther
	}
}

// ReferrerHost extracts the host from a Referer header value. Empty or
// unparsable referrers yield "" and are omitted from the referrer map.
func ReferrerHost(referrer string) string {
	referrer = strings.TrimSpace(referrer)
	if referrer == "" {
		return ""
	}

	u, err := url.Parse(referrer)
	if err != nil {
		return ""
	}

	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}
