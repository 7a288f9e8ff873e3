package tracking

import (
	"net"
	"net/http"
	"strings"
)

// DeviceInfo is what the user-agent string reveals about the opening client.
type DeviceInfo struct {
	Device  string `json:"device"`
	Browser string `json:"browser"`
	OS      string `json:"os"`
}

// Location is the coarse geo context resolved from the client IP.
// Every field falls back to "Unknown" rather than empty.
type Location struct {
	Country  string `json:"country"`
	City     string `json:"city"`
	Region   string `json:"region"`
	Timezone string `json:"timezone"`
}

// GeoLocator resolves an IP address into a Location. Implementations must
// never fail the request path; unresolvable IPs yield UnknownLocation.
type GeoLocator interface {
	Locate(ip string) Location
}

// UnknownLocation is returned whenever geolocation cannot say anything.
func UnknownLocation() Location {
	return Location{Country: "Unknown", City: "Unknown", Region: "Unknown", Timezone: "Unknown"}
}

// ClientIP extracts the originating address, preferring proxy headers.
// X-Forwarded-For may carry a chain; the first entry is the client.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if rip := r.Header.Get("X-Real-Ip"); rip != "" {
		return rip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "Unknown"
	}
	return host
}

var mobileMarkers = []string{
	"mobile", "android", "iphone", "ipod", "iemobile", "blackberry",
	"kindle", "silk-accelerated", "hpwos", "webos", "opera mobi", "opera mini",
}

// ParseUserAgent classifies the client from its user-agent string.
// Tablets are checked before phones because tablet agents usually also
// contain mobile markers. An Android agent without "mobi" is a tablet.
func ParseUserAgent(userAgent string) DeviceInfo {
	if userAgent == "" {
		return DeviceInfo{Device: "Unknown", Browser: "Unknown", OS: "Unknown"}
	}

	ua := strings.ToLower(userAgent)

	device := "Desktop"
	switch {
	case strings.Contains(ua, "tablet"),
		strings.Contains(ua, "ipad"),
		strings.Contains(ua, "playbook"),
		strings.Contains(ua, "silk"),
		strings.Contains(ua, "android") && !strings.Contains(ua, "mobi"):
		device = "Tablet"
	default:
		for _, marker := range mobileMarkers {
			if strings.Contains(ua, marker) {
				device = "Mobile"
				break
			}
		}
	}

	browser := "Unknown"
	switch {
	case strings.Contains(ua, "firefox"):
		browser = "Firefox"
	case strings.Contains(ua, "chrome"):
		browser = "Chrome"
	case strings.Contains(ua, "safari"):
		browser = "Safari"
	case strings.Contains(ua, "edge"):
		browser = "Edge"
	case strings.Contains(ua, "opera"), strings.Contains(ua, "opr"):
		browser = "Opera"
	case strings.Contains(ua, "msie"), strings.Contains(ua, "trident"):
		browser = "Internet Explorer"
	}

	os := "Unknown"
	switch {
	case strings.Contains(ua, "windows"):
		os = "Windows"
	case strings.Contains(ua, "mac"):
		os = "macOS"
	case strings.Contains(ua, "linux"):
		os = "Linux"
	case strings.Contains(ua, "android"):
		os = "Android"
	case strings.Contains(ua, "ios"), strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"):
		os = "iOS"
	}

	return DeviceInfo{Device: device, Browser: browser, OS: os}
}
