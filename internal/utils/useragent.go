package utils

import (
	"strings"

	ua "github.com/mssola/user_agent"
)

// DeviceInfo is the parsed form of a User-Agent stored in audit details
type DeviceInfo struct {
	DeviceType string `json:"device_type"`
	OS         string `json:"os"`
	Browser    string `json:"browser"`
	BrowserVer string `json:"browser_ver,omitempty"`
	IsBot      bool   `json:"is_bot"`
	Platform   string `json:"platform"`
}

var tabletMarkers = []string{"ipad", "tablet", "kindle", "nexus 7", "nexus 9", "nexus 10", "sm-t"}

var platforms = []struct{ marker, name string }{
	{"android", "android"},
	{"iphone os", "ios"},
	{"ios", "ios"},
	{"windows", "windows"},
	{"mac os x", "mac"},
	{"macos", "mac"},
	{"chrome os", "chromeos"},
	{"cros", "chromeos"},
	{"linux", "linux"},
}

// ParseUserAgent classifies a User-Agent string. Staff terminals and the
// maintenance CLI send non-browser agents, which come back as desktop with
// unknown platform.
func ParseUserAgent(userAgent string) DeviceInfo {
	if userAgent == "" || userAgent == UnknownUserAgent {
		return DeviceInfo{DeviceType: "unknown", OS: UnknownUserAgent, Browser: UnknownUserAgent, Platform: "unknown"}
	}

	parser := ua.New(userAgent)
	info := DeviceInfo{
		DeviceType: "desktop",
		OS:         UnknownUserAgent,
		Browser:    UnknownUserAgent,
		IsBot:      parser.Bot(),
		Platform:   "unknown",
	}

	if parser.Mobile() {
		info.DeviceType = "mobile"
	}
	lower := strings.ToLower(userAgent)
	for _, m := range tabletMarkers {
		if strings.Contains(lower, m) {
			info.DeviceType = "tablet"
			break
		}
	}

	if name, version := parser.Browser(); name != "" {
		info.Browser = name
		info.BrowserVer = version
	}

	osInfo := parser.OSInfo()
	if osInfo.Name != "" {
		info.OS = strings.TrimSpace(osInfo.Name + " " + osInfo.Version)
		osName := strings.ToLower(osInfo.Name)
		for _, p := range platforms {
			if strings.Contains(osName, p.marker) {
				info.Platform = p.name
				break
			}
		}
	}

	return info
}
