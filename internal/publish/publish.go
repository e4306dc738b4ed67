// Package publish uploads finished recordings to the video hosting
// service. The service is opaque to the pipeline: one multipart upload
// in, one public URL out.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Uploader publishes local files to the configured hosting endpoint.
type Uploader struct {
	endpoint    string
	token       string
	description string
	privacy     string
	http        *http.Client
	logger      *slog.Logger
}

// NewUploader creates an uploader. The timeout bounds the whole upload
// request.
func NewUploader(endpoint, token, description, privacy string, timeout time.Duration, logger *slog.Logger) *Uploader {
	return &Uploader{
		endpoint:    endpoint,
		token:       token,
		description: description,
		privacy:     privacy,
		http:        &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

// Publish uploads the file and returns its public URL. A response
// without a URL is a failure; the local file is never deleted.
func (u *Uploader) Publish(ctx context.Context, path, title string) (string, error) {
	if u.endpoint == "" {
		return "", fmt.Errorf("publish: no upload endpoint configured")
	}

	u.logger.Info("starting upload", "path", path, "title", title)

	body, contentType, err := u.buildRequestBody(path, title)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("publish: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if u.token != "" {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}

	resp, err := u.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("publish: upload failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("publish: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("publish: upload returned status %d", resp.StatusCode)
	}

	var decoded struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("publish: decode response: %w", err)
	}
	if decoded.URL == "" {
		return "", fmt.Errorf("publish: upload did not return a URL")
	}

	u.logger.Info("upload successful", "url", decoded.URL)
	return decoded.URL, nil
}

// buildRequestBody assembles the multipart payload: metadata fields plus
// the video file.
func (u *Uploader) buildRequestBody(path, title string) (io.Reader, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("publish: open %s: %w", path, err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fields := map[string]string{
		"title":       title,
		"description": u.description,
		"privacy":     u.privacy,
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("publish: write field %s: %w", name, err)
		}
	}

	part, err := writer.CreateFormFile("video", filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("publish: create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("publish: read %s: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("publish: finalize payload: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}
