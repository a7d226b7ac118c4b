package mailer

import (
	"net/url"
	"strings"
	"testing"
)

func TestConfirmationURL(t *testing.T) {
	link := ConfirmationURL("https://landlord.homegames.io/", "abc123", "req-1")
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	if u.Path != "/verify_publish_request" {
		t.Errorf("path = %s", u.Path)
	}
	if u.Query().Get("code") != "abc123" {
		t.Errorf("code = %s", u.Query().Get("code"))
	}
	if u.Query().Get("requestId") != "req-1" {
		t.Errorf("requestId = %s", u.Query().Get("requestId"))
	}
	if strings.Contains(link, "//verify") {
		t.Errorf("double slash in %s", link)
	}
}

func TestConfirmationBody(t *testing.T) {
	body := confirmationBody("landlord@homegames.io", "owner@example.com", "https://x/verify")
	for _, want := range []string{
		"To: owner@example.com",
		"Content-Type: text/html",
		`href="https://x/verify"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}
