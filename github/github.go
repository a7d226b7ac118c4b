// Package github fetches repository archives and metadata for submissions.
// Nothing inside a fetched tree is ever executed or imported here.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const userAgent = "HomegamesLandlord/0.1.0"

type Client struct {
	http        *http.Client
	user        string
	token       string
	apiBase     string
	archiveBase string
}

func NewClient(user, token string) *Client {
	return &Client{
		http:        &http.Client{Timeout: 60 * time.Second},
		user:        user,
		token:       token,
		apiBase:     "https://api.github.com",
		archiveBase: "https://codeload.github.com",
	}
}

// FetchError covers network failures, non-2xx responses, and structurally
// invalid archives.
type FetchError struct {
	URL    string
	Status int
	Reason string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Reason)
}

func (e *FetchError) Unwrap() error { return e.Err }

// LicenseError reports a missing or unapproved license. License is the
// observed identifier, empty when the repository declares none.
type LicenseError struct {
	Owner   string
	Repo    string
	License string
}

func (e *LicenseError) Error() string {
	if e.License == "" {
		return fmt.Sprintf("%s/%s declares no license", e.Owner, e.Repo)
	}
	return fmt.Sprintf("%s/%s license %q is not approved", e.Owner, e.Repo, e.License)
}

func (c *Client) get(ctx context.Context, url string, authed bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	if authed && c.user != "" && c.token != "" {
		req.SetBasicAuth(c.user, c.token)
	}
	return c.http.Do(req)
}

// License returns the repository's license identifier, or "" when the
// repository declares none.
func (c *Client) License(ctx context.Context, owner, repo string) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s", c.apiBase, owner, repo)
	resp, err := c.get(ctx, url, true)
	if err != nil {
		return "", fmt.Errorf("repo metadata: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("repo metadata %s/%s: status %d", owner, repo, resp.StatusCode)
	}

	var meta struct {
		License *struct {
			SPDXID string `json:"spdx_id"`
		} `json:"license"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&meta); err != nil {
		return "", fmt.Errorf("repo metadata %s/%s: %w", owner, repo, err)
	}
	if meta.License == nil {
		return "", nil
	}
	return meta.License.SPDXID, nil
}

// ValidateLicense accepts only the single approved identifier.
func (c *Client) ValidateLicense(ctx context.Context, owner, repo, approved string) error {
	id, err := c.License(ctx, owner, repo)
	if err != nil {
		return err
	}
	if id == "" || id != approved {
		return &LicenseError{Owner: owner, Repo: repo, License: id}
	}
	return nil
}

// OwnerEmail returns the repository owner's public email address.
func (c *Client) OwnerEmail(ctx context.Context, owner string) (string, error) {
	url := fmt.Sprintf("%s/users/%s", c.apiBase, owner)
	resp, err := c.get(ctx, url, true)
	if err != nil {
		return "", fmt.Errorf("owner lookup: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("owner lookup %s: status %d", owner, resp.StatusCode)
	}

	var user struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&user); err != nil {
		return "", fmt.Errorf("owner lookup %s: %w", owner, err)
	}
	if user.Email == "" {
		return "", fmt.Errorf("owner %s has no public email", owner)
	}
	return user.Email, nil
}

// downloadToFile streams a GET response body to path.
func (c *Client) downloadToFile(ctx context.Context, url, path string) error {
	resp, err := c.get(ctx, url, false)
	if err != nil {
		return &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &FetchError{URL: url, Status: resp.StatusCode}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return &FetchError{URL: url, Err: err}
	}
	return f.Close()
}
