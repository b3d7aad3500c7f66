package bypass

import (
	"net/http"
	"testing"
)

func resp(status int, header http.Header, body string) *Response {
	if header == nil {
		header = http.Header{}
	}
	return &Response{StatusCode: status, Header: header, Body: []byte(body)}
}

func TestDetectors(t *testing.T) {
	tests := []struct {
		name   string
		res    *Response
		detect Detector
		want   string
	}{
		{"cloudflare clean 200", resp(200, http.Header{"Server": {"cloudflare"}}, "OK"), detectCloudflare, ""},
		{"cloudflare header", resp(403, http.Header{"Server": {"cloudflare"}}, "Access Denied"), detectCloudflare, "Cloudflare"},
		{"cloudflare turnstile", resp(503, nil, "<html>... cf-turnstile ...</html>"), detectCloudflare, "Cloudflare"},
		{"akamai header", resp(403, http.Header{"Server": {"AkamaiGHost"}}, ""), detectAkamai, "Akamai"},
		{"akamai body", resp(403, nil, "Access Denied... Reference #123.456"), detectAkamai, "Akamai"},
		{"akamai wrong status", resp(503, http.Header{"Server": {"AkamaiGHost"}}, ""), detectAkamai, ""},
		{"datadome header", resp(403, http.Header{"X-Datadome": {"1"}}, ""), detectDataDome, "DataDome"},
		{"datadome body", resp(403, nil, "script src='https://geo.captcha-delivery.com/...'"), detectDataDome, "DataDome"},
		{"perimeterx header", resp(403, http.Header{"X-Px-Captcha": {"1"}}, ""), detectPerimeterX, "PerimeterX"},
		{"perimeterx body", resp(403, nil, `<div id="px-captcha"></div>`), detectPerimeterX, "PerimeterX"},
		{"perimeterx clean", resp(403, nil, "forbidden"), detectPerimeterX, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detected, vendor := tt.detect(tt.res)
			if detected != (tt.want != "") {
				t.Fatalf("detected = %v, want %v", detected, tt.want != "")
			}
			if vendor != tt.want {
				t.Errorf("vendor = %q, want %q", vendor, tt.want)
			}
		})
	}
}

func TestAnalyze(t *testing.T) {
	if got := Analyze(nil, DefaultDetectors()); got != "" {
		t.Errorf("expected empty vendor for nil response, got %q", got)
	}

	clean := resp(200, http.Header{"Content-Type": {"text/html"}}, "<html><body>hello</body></html>")
	if got := Analyze(clean, DefaultDetectors()); got != "" {
		t.Errorf("expected clean page, got %q", got)
	}

	blocked := resp(403, http.Header{"Server": {"cloudflare"}}, "")
	if got := Analyze(blocked, DefaultDetectors()); got != "Cloudflare" {
		t.Errorf("expected Cloudflare, got %q", got)
	}

	// Header lookups are case-insensitive through http.Header.
	raw := &Response{StatusCode: 403, Header: http.Header{}, Body: nil}
	raw.Header.Set("x-px-captcha", "1")
	if got := Analyze(raw, DefaultDetectors()); got != "PerimeterX" {
		t.Errorf("expected PerimeterX, got %q", got)
	}
}
