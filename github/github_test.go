package github

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
)

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func archiveServer(t *testing.T, status int, body []byte) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	c := NewClient("", "")
	c.archiveBase = srv.URL
	return c
}

func TestDownloadArchive(t *testing.T) {
	archive := zipArchive(t, map[string]string{
		"do-dad-abc123/index.js":     "module.exports = class {}",
		"do-dad-abc123/package.json": "{}",
		"do-dad-abc123/src/game.js":  "",
	})
	c := archiveServer(t, http.StatusOK, archive)

	build, err := c.DownloadArchive(context.Background(), "prosif", "do-dad", "abc123")
	if err != nil {
		t.Fatalf("DownloadArchive: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(build.Dir) })

	if filepath.Base(build.Root) != "do-dad-abc123" {
		t.Errorf("root = %s, want do-dad-abc123", build.Root)
	}
	if _, err := os.Stat(filepath.Join(build.Root, "index.js")); err != nil {
		t.Errorf("index.js not extracted: %v", err)
	}
	if _, err := os.Stat(build.ArchivePath); err != nil {
		t.Errorf("archive not retained: %v", err)
	}
}

func TestDownloadArchiveAmbiguousRoot(t *testing.T) {
	archive := zipArchive(t, map[string]string{
		"one/index.js": "",
		"two/index.js": "",
	})
	c := archiveServer(t, http.StatusOK, archive)

	_, err := c.DownloadArchive(context.Background(), "o", "r", "c")
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("want FetchError, got %v", err)
	}
}

func TestDownloadArchiveNotFound(t *testing.T) {
	c := archiveServer(t, http.StatusNotFound, nil)
	_, err := c.DownloadArchive(context.Background(), "o", "r", "c")
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("want FetchError, got %v", err)
	}
	if fe.Status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", fe.Status)
	}
}

func TestSafeJoinRejectsEscape(t *testing.T) {
	if _, err := safeJoin("/tmp/x", "../evil"); err == nil {
		t.Error("expected error for ../evil")
	}
	if _, err := safeJoin("/tmp/x", "ok/fine.js"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func metadataServer(t *testing.T, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != userAgent {
			t.Errorf("user agent = %q", r.Header.Get("User-Agent"))
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	c := NewClient("landlord", "token")
	c.apiBase = srv.URL
	return c
}

func TestValidateLicenseApproved(t *testing.T) {
	c := metadataServer(t, `{"license":{"spdx_id":"MIT"}}`)
	if err := c.ValidateLicense(context.Background(), "o", "r", "MIT"); err != nil {
		t.Errorf("ValidateLicense: %v", err)
	}
}

func TestValidateLicenseWrong(t *testing.T) {
	c := metadataServer(t, `{"license":{"spdx_id":"GPL-3.0"}}`)
	err := c.ValidateLicense(context.Background(), "o", "r", "MIT")
	var le *LicenseError
	if !errors.As(err, &le) {
		t.Fatalf("want LicenseError, got %v", err)
	}
	if le.License != "GPL-3.0" {
		t.Errorf("observed license = %q", le.License)
	}
}

func TestValidateLicenseMissing(t *testing.T) {
	c := metadataServer(t, `{"license":null}`)
	err := c.ValidateLicense(context.Background(), "o", "r", "MIT")
	var le *LicenseError
	if !errors.As(err, &le) {
		t.Fatalf("want LicenseError, got %v", err)
	}
	if le.License != "" {
		t.Errorf("observed license = %q, want empty", le.License)
	}
}

func TestOwnerEmail(t *testing.T) {
	c := metadataServer(t, `{"login":"prosif","email":"prosif@example.com"}`)
	email, err := c.OwnerEmail(context.Background(), "prosif")
	if err != nil {
		t.Fatalf("OwnerEmail: %v", err)
	}
	if email != "prosif@example.com" {
		t.Errorf("email = %q", email)
	}
}

func TestOwnerEmailMissing(t *testing.T) {
	c := metadataServer(t, `{"login":"prosif","email":null}`)
	if _, err := c.OwnerEmail(context.Background(), "prosif"); err == nil {
		t.Error("expected error for missing email")
	}
}
