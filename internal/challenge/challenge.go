// Package challenge recognizes bot-protection and captcha pages so that a
// 200 response carrying an interstitial is not mistaken for real content.
package challenge

import (
	"bytes"
	"net/http"
	"strings"
)

// Page is the part of an upstream response the detectors look at.
type Page struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Detector reports whether a page is a challenge and which vendor served it.
type Detector func(p Page) (detected bool, source string)

// CaptchaMarkers are substrings that mark a captcha or access-denied page
// regardless of the status code.
var CaptchaMarkers = []string{
	"captcha",
	"CAPTCHA",
	"blocked",
	"Доступ ограничен",
}

// DefaultDetectors returns the standard list of detectors, vendor-specific
// ones first.
func DefaultDetectors() []Detector {
	return []Detector{
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
		detectCaptcha,
	}
}

// Detect runs p through detectors and returns the first match.
func Detect(p Page, detectors []Detector) (bool, string) {
	for _, d := range detectors {
		if ok, source := d(p); ok {
			return true, source
		}
	}
	return false, ""
}

func blockedStatus(status int) bool {
	return status == http.StatusForbidden || status == http.StatusServiceUnavailable
}

func serverContains(h http.Header, needle string) bool {
	return strings.Contains(strings.ToLower(h.Get("Server")), needle)
}

func bodyContainsAny(body []byte, needles ...string) bool {
	for _, n := range needles {
		if bytes.Contains(body, []byte(n)) {
			return true
		}
	}
	return false
}

func detectCloudflare(p Page) (bool, string) {
	if !blockedStatus(p.StatusCode) {
		return false, ""
	}
	if serverContains(p.Header, "cloudflare") ||
		bodyContainsAny(p.Body, "cf-browser-verification", "cf-turnstile", "Attention Required! | Cloudflare") {
		return true, "Cloudflare"
	}
	return false, ""
}

func detectAkamai(p Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if serverContains(p.Header, "akamai") {
		return true, "Akamai"
	}
	if bodyContainsAny(p.Body, "Reference #") && bodyContainsAny(p.Body, "Access Denied") {
		return true, "Akamai"
	}
	return false, ""
}

func detectDataDome(p Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if serverContains(p.Header, "datadome") || p.Header.Get("X-DataDome") != "" {
		return true, "DataDome"
	}
	if bodyContainsAny(p.Body, "geo.captcha-delivery.com") {
		return true, "DataDome"
	}
	return false, ""
}

func detectPerimeterX(p Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if p.Header.Get("X-Px-Captcha") != "" ||
		bodyContainsAny(p.Body, "client.perimeterx.net", "px-captcha", "_pxBlock") {
		return true, "PerimeterX"
	}
	return false, ""
}

// detectCaptcha matches the generic markers on any status.
func detectCaptcha(p Page) (bool, string) {
	if bodyContainsAny(p.Body, CaptchaMarkers...) {
		return true, "captcha"
	}
	return false, ""
}
