package tracking

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"forwarded single", "10.0.0.1:1234", map[string]string{"X-Forwarded-For": "203.0.113.9"}, "203.0.113.9"},
		{"forwarded chain", "10.0.0.1:1234", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.2"}, "203.0.113.9"},
		{"real ip", "10.0.0.1:1234", map[string]string{"X-Real-Ip": "198.51.100.7"}, "198.51.100.7"},
		{"remote addr", "192.0.2.4:5678", nil, "192.0.2.4"},
		{"remote addr no port", "192.0.2.4", nil, "192.0.2.4"},
		{"empty", "", nil, "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/track/open/x", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseUserAgent(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want DeviceInfo
	}{
		{
			"empty",
			"",
			DeviceInfo{Device: "Unknown", Browser: "Unknown", OS: "Unknown"},
		},
		{
			"desktop firefox windows",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:122.0) Gecko/20100101 Firefox/122.0",
			DeviceInfo{Device: "Desktop", Browser: "Firefox", OS: "Windows"},
		},
		{
			"iphone safari",
			"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Version/17.0 Mobile/15E148 Safari/604.1",
			DeviceInfo{Device: "Mobile", Browser: "Safari", OS: "macOS"},
		},
		{
			"android phone chrome",
			"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 Chrome/120.0 Mobile Safari/537.36",
			DeviceInfo{Device: "Mobile", Browser: "Chrome", OS: "Linux"},
		},
		{
			"android tablet",
			"Mozilla/5.0 (Linux; Android 13; SM-X700) AppleWebKit/537.36 Chrome/119.0 Safari/537.36",
			DeviceInfo{Device: "Tablet", Browser: "Chrome", OS: "Linux"},
		},
		{
			"ipad",
			"Mozilla/5.0 (iPad; CPU OS 16_6 like Mac OS X) AppleWebKit/605.1.15 Version/16.6 Mobile/15E148 Safari/604.1",
			DeviceInfo{Device: "Tablet", Browser: "Safari", OS: "macOS"},
		},
		{
			"ie trident",
			"Mozilla/5.0 (Windows NT 6.1; Trident/7.0; rv:11.0) like Gecko",
			DeviceInfo{Device: "Desktop", Browser: "Internet Explorer", OS: "Windows"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseUserAgent(tt.ua); got != tt.want {
				t.Errorf("ParseUserAgent(%q) = %+v, want %+v", tt.ua, got, tt.want)
			}
		})
	}
}

func TestNopLocator(t *testing.T) {
	loc := NopLocator{}.Locate("203.0.113.1")
	if loc != UnknownLocation() {
		t.Errorf("NopLocator.Locate = %+v, want all Unknown", loc)
	}
}

func TestIDs(t *testing.T) {
	tid := NewTrackingID()
	if len(tid) != 36 {
		t.Errorf("NewTrackingID length = %d, want 36", len(tid))
	}
	lid := NewLinkID()
	if len(lid) != 8 {
		t.Errorf("NewLinkID length = %d, want 8", len(lid))
	}
	if NewLinkID() == lid {
		t.Error("NewLinkID returned the same value twice")
	}
}
