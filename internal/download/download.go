// Package download resolves submitted match references and fetches replay
// files. A reference is either a direct .dem.bz2 URL or free text
// containing a match share code, which is resolved to a download URL via
// an external service.
package download

import (
	"bytes"
	"compress/bzip2"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/norton62/demo2video/internal/job"
)

var shareCodeRe = regexp.MustCompile(`(CSGO(-[A-Za-z0-9]{5}){5})`)

// ParseShareCode extracts the match share code from a full share link or
// free text. Returns "" when no well-formed token is found.
func ParseShareCode(raw string) string {
	return shareCodeRe.FindString(raw)
}

// IsDemoURL reports whether the input is a direct demo download URL.
func IsDemoURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	return (strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://")) &&
		strings.HasSuffix(raw, ".dem.bz2")
}

// Client downloads demos into a fixed directory, resolving share codes
// through an ordered list of resolver endpoints.
type Client struct {
	endpoints []string
	demoDir   string
	http      *http.Client
	logger    *slog.Logger
}

// NewClient creates a download client. The request timeout bounds both
// resolution and fetch calls.
func NewClient(endpoints []string, demoDir string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		endpoints: endpoints,
		demoDir:   demoDir,
		http:      &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

// ResolveInput normalizes a raw target reference: a direct demo URL is
// returned as-is, otherwise a share code token is extracted. Returns
// job.ErrInvalidInput when neither shape is found.
func (c *Client) ResolveInput(raw string) (string, error) {
	if IsDemoURL(raw) {
		c.logger.Info("direct demo URL detected", "url", strings.TrimSpace(raw))
		return strings.TrimSpace(raw), nil
	}
	code := ParseShareCode(raw)
	if code == "" {
		return "", fmt.Errorf("%w: %q", job.ErrInvalidInput, raw)
	}
	return code, nil
}

// Download fetches the demo for a resolved reference and returns the path
// of the extracted .dem file. Idempotent by filename: a file already
// present at the destination is returned without re-fetching.
func (c *Client) Download(ctx context.Context, ref string) (string, error) {
	downloadURL := ref
	shareCode := ""
	if !IsDemoURL(ref) {
		shareCode = ref
		resolved, err := c.resolveShareCode(ctx, ref)
		if err != nil {
			return "", err
		}
		downloadURL = resolved
	}

	demFilename, bz2Filename := c.destinationNames(downloadURL, shareCode)

	if _, err := os.Stat(demFilename); err == nil {
		c.logger.Info("demo file already exists", "path", demFilename)
		return demFilename, nil
	}

	if err := os.MkdirAll(c.demoDir, 0o755); err != nil {
		return "", fmt.Errorf("download: create demo dir: %w", err)
	}

	c.logger.Info("downloading demo", "url", downloadURL, "dest", demFilename)
	if err := c.fetchAndExtract(ctx, downloadURL, bz2Filename, demFilename); err != nil {
		return "", err
	}

	c.logger.Info("extraction complete", "path", demFilename)
	return demFilename, nil
}

// resolveShareCode asks each resolver endpoint in order for the download
// URL; the first success wins.
func (c *Client) resolveShareCode(ctx context.Context, shareCode string) (string, error) {
	payload, err := json.Marshal(map[string]string{"shareCode": shareCode})
	if err != nil {
		return "", fmt.Errorf("download: encode resolver payload: %w", err)
	}

	var lastErr error
	for _, endpoint := range c.endpoints {
		c.logger.Info("requesting download link", "endpoint", endpoint, "share_code", shareCode)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			lastErr = err
			continue
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			c.logger.Error("resolver unreachable", "endpoint", endpoint, "error", err)
			lastErr = err
			continue
		}

		link, err := decodeResolverResponse(resp)
		if err != nil {
			// Expiry is a property of the replay, not the endpoint; no
			// point asking the remaining resolvers.
			if errors.Is(err, job.ErrDemoExpired) {
				return "", fmt.Errorf("download: %w", err)
			}
			c.logger.Error("resolver request failed", "endpoint", endpoint, "error", err)
			lastErr = err
			continue
		}
		if link != "" {
			return link, nil
		}
		c.logger.Warn("resolver returned no download URL", "endpoint", endpoint)
		lastErr = fmt.Errorf("download: resolver %s returned no download URL", endpoint)
	}

	if lastErr != nil {
		return "", fmt.Errorf("download: all resolvers failed: %w", lastErr)
	}
	return "", fmt.Errorf("download: no resolver endpoints configured")
}

func decodeResolverResponse(resp *http.Response) (string, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	// An explicitly expired replay is a distinct terminal disposition.
	if resp.StatusCode == http.StatusGone {
		return "", job.ErrDemoExpired
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if strings.Contains(strings.ToLower(string(body)), "expired") {
			return "", job.ErrDemoExpired
		}
		return "", fmt.Errorf("resolver returned status %d", resp.StatusCode)
	}

	var decoded struct {
		DownloadLink string `json:"downloadLink"`
		Error        string `json:"error"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode resolver response: %w", err)
	}
	if decoded.Error != "" && strings.Contains(strings.ToLower(decoded.Error), "expired") {
		return "", job.ErrDemoExpired
	}
	return decoded.DownloadLink, nil
}

// destinationNames derives the deterministic compressed and extracted
// filenames for a download URL.
func (c *Client) destinationNames(downloadURL, shareCode string) (demPath, bz2Path string) {
	base := ""
	if u, err := url.Parse(downloadURL); err == nil {
		base = filepath.Base(u.Path)
	}

	var demName string
	switch {
	case strings.HasSuffix(base, ".dem.bz2"):
		demName = strings.TrimSuffix(base, ".bz2")
	case shareCode != "":
		c.logger.Warn("could not parse original filename from URL", "url", downloadURL)
		demName = shareCode + ".dem"
		base = demName + ".bz2"
	default:
		c.logger.Warn("could not parse original filename from URL", "url", downloadURL)
		demName = fmt.Sprintf("demo_%d.dem", time.Now().Unix())
		base = demName + ".bz2"
	}

	return filepath.Join(c.demoDir, demName), filepath.Join(c.demoDir, base)
}

// fetchAndExtract downloads the compressed demo, decompresses it next to
// the temp file and removes the compressed copy.
func (c *Client) fetchAndExtract(ctx context.Context, downloadURL, bz2Path, demPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return fmt.Errorf("download: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("download: fetch %s: %w", downloadURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("download: %w", job.ErrDemoExpired)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("download: fetch returned status %d", resp.StatusCode)
	}

	bz2File, err := os.Create(bz2Path)
	if err != nil {
		return fmt.Errorf("download: create %s: %w", bz2Path, err)
	}
	if _, err := io.Copy(bz2File, resp.Body); err != nil {
		bz2File.Close()
		os.Remove(bz2Path)
		return fmt.Errorf("download: write %s: %w", bz2Path, err)
	}
	if err := bz2File.Close(); err != nil {
		return fmt.Errorf("download: close %s: %w", bz2Path, err)
	}

	c.logger.Info("download complete, extracting demo", "path", bz2Path)

	in, err := os.Open(bz2Path)
	if err != nil {
		return fmt.Errorf("download: reopen %s: %w", bz2Path, err)
	}
	defer in.Close()

	out, err := os.Create(demPath)
	if err != nil {
		return fmt.Errorf("download: create %s: %w", demPath, err)
	}
	if _, err := io.Copy(out, bzip2.NewReader(in)); err != nil {
		out.Close()
		os.Remove(demPath)
		return fmt.Errorf("download: extract %s: %w", bz2Path, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("download: close %s: %w", demPath, err)
	}

	if err := os.Remove(bz2Path); err != nil {
		c.logger.Warn("failed to delete compressed demo", "path", bz2Path, "error", err)
	}
	return nil
}
