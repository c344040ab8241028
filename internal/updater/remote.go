package updater

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const (
	defaultAPIBaseURL     = "https://api.github.com"
	defaultArchiveBaseURL = "https://github.com"
	defaultFetchTimeout   = 60 * time.Second
)

// Remote talks to the GitHub repository that hosts released trees. Both
// base URLs are overridable so tests can point it at a local server.
type Remote struct {
	Repo string // "owner/name"
	Ref  string // branch, tag, or commit

	APIBaseURL     string
	ArchiveBaseURL string
	Client         *http.Client
}

// NewRemote builds a Remote with production defaults and a bounded
// client timeout so a hung fetch cannot hold the update lock forever.
func NewRemote(repo, ref string) *Remote {
	return &Remote{
		Repo:           repo,
		Ref:            ref,
		APIBaseURL:     defaultAPIBaseURL,
		ArchiveBaseURL: defaultArchiveBaseURL,
		Client:         &http.Client{Timeout: defaultFetchTimeout},
	}
}

func (r *Remote) client() *http.Client {
	if r.Client != nil {
		return r.Client
	}
	return &http.Client{Timeout: defaultFetchTimeout}
}

// LatestRevision resolves the configured ref to a commit SHA via the
// GitHub commits API. The SHA is the version identifier: equality with
// the installed version means up to date, any difference means an
// update is available.
func (r *Remote) LatestRevision(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/commits/%s", r.APIBaseURL, r.Repo, r.Ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build revision request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := r.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to query %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("revision query %s returned %s", url, resp.Status)
	}

	var payload struct {
		SHA string `json:"sha"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode revision response: %w", err)
	}
	if payload.SHA == "" {
		return "", fmt.Errorf("revision response for %s/%s carried no sha", r.Repo, r.Ref)
	}
	return payload.SHA, nil
}

// DownloadArchive fetches the zip archive of the configured ref into
// destPath.
func (r *Remote) DownloadArchive(ctx context.Context, destPath string) error {
	url := fmt.Sprintf("%s/%s/archive/%s.zip", r.ArchiveBaseURL, r.Repo, r.Ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build archive request: %w", err)
	}

	resp, err := r.client().Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("archive download %s returned %s", url, resp.Status)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(destPath)
		return fmt.Errorf("failed to write archive: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("failed to close archive file: %w", err)
	}
	return nil
}
