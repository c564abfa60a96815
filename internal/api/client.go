// Package api talks to the flight viewer web service: reachability
// checks at startup and recording uploads at session end.
package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// UploadMetadata describes the session a recording file came from.
type UploadMetadata struct {
	Hostname        string
	SessionStart    time.Time
	DurationSeconds float64
}

// Client handles communication with the flight viewer.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Healthcheck checks if the flight viewer is reachable.
func (c *Client) Healthcheck() error {
	resp, err := c.httpClient.Get(c.baseURL + "/healthcheck")
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

// Upload streams an exported recording file to the flight viewer as a
// multipart form. The file is piped rather than buffered, since exports
// can be large.
func (c *Client) Upload(filePath string, meta UploadMetadata) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	filename := filepath.Base(filePath)

	errCh := make(chan error, 1)
	go func() {
		defer pw.Close()
		defer form.Close()
		errCh <- writeForm(form, c.apiKey, filename, meta, file)
	}()

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/v1/recordings/add", pr)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if writeErr := <-errCh; writeErr != nil {
		return writeErr
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upload returned status %d", resp.StatusCode)
	}
	return nil
}

func writeForm(form *multipart.Writer, secret, filename string, meta UploadMetadata, file io.Reader) error {
	_ = form.WriteField("secret", secret)
	_ = form.WriteField("filename", filename)
	_ = form.WriteField("hostname", meta.Hostname)
	_ = form.WriteField("sessionStart", meta.SessionStart.UTC().Format(time.RFC3339))
	_ = form.WriteField("durationSeconds", fmt.Sprintf("%f", meta.DurationSeconds))

	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}
	return nil
}
