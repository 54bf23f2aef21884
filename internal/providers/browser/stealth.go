package browser

import (
	_ "embed"
	"strings"

	"github.com/bytedance/sonic"
)

//go:embed assets/stealth.js
var stealthJS string

const profilePlaceholder = "__STEALTH_PROFILE__"

// StealthProfile is the fingerprint every launched instance presents.
// It is applied as launch configuration and never varies per request.
type StealthProfile struct {
	UserAgent           string            `json:"userAgent"`
	Platform            string            `json:"platform"`
	Languages           []string          `json:"languages"`
	HardwareConcurrency int               `json:"hardwareConcurrency"`
	Plugins             []string          `json:"plugins"`
	ViewportWidth       int64             `json:"-"`
	ViewportHeight      int64             `json:"-"`
	Headers             map[string]string `json:"-"`
}

// DefaultStealthProfile mirrors a desktop Chrome 123 on Windows
func DefaultStealthProfile() StealthProfile {
	return StealthProfile{
		UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
		Platform:            "Win32",
		Languages:           []string{"en-US", "en"},
		HardwareConcurrency: 8,
		Plugins:             []string{"PDF Viewer", "Chrome PDF Viewer", "Chromium PDF Viewer", "Microsoft Edge PDF Viewer", "WebKit built-in PDF"},
		ViewportWidth:       1366,
		ViewportHeight:      768,
		Headers: map[string]string{
			"Accept-Language":           "en-US,en;q=0.9",
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Encoding":           "gzip, deflate, br",
			"Upgrade-Insecure-Requests": "1",
			"Sec-Fetch-Dest":            "document",
			"Sec-Fetch-Mode":            "navigate",
			"Sec-Fetch-Site":            "none",
			"Sec-Fetch-User":            "?1",
		},
	}
}

// Script returns the JavaScript evaluated before every document
func (p StealthProfile) Script() (string, error) {
	encoded, err := sonic.MarshalString(p)
	if err != nil {
		return "", err
	}
	return strings.Replace(stealthJS, profilePlaceholder, encoded, 1), nil
}
