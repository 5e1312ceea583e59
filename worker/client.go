// Package worker implements the worker agent: a sequential loop that claims
// segments from the coordinator, transcodes them locally and uploads the
// results.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Client talks to the coordinator's dispatch HTTP API.
type Client struct {
	baseURL string

	// Control calls (claim, report) are small and bounded; transfers
	// (segment download, result upload) may run for minutes.
	control  *http.Client
	transfer *http.Client
}

// NewClient creates a dispatch API client for the given coordinator base URL
// (e.g. "http://192.168.1.10:5000").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		control:  &http.Client{Timeout: 15 * time.Second},
		transfer: &http.Client{},
	}
}

// Job is one claimed segment: its name, the store generation the claim was
// issued under, and the URL to fetch it from. The generation is echoed back
// on upload and report so the coordinator can discard results that outlived
// a store rebuild.
type Job struct {
	Chunk      string
	Generation uint64
	URL        string
}

// GetJob claims the next queued segment. A nil Job with nil error means no
// work is queued right now.
func (c *Client) GetJob(ctx context.Context, workerID string) (*Job, error) {
	url := fmt.Sprintf("%s/get_job?worker_id=%s", c.baseURL, workerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.control.Do(req)
	if err != nil {
		return nil, fmt.Errorf("claim request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("claim request returned %s", resp.Status)
	}

	var body struct {
		Chunk      *string `json:"chunk"`
		Generation uint64  `json:"generation"`
		URL        string  `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode claim response: %w", err)
	}

	if body.Chunk == nil {
		return nil, nil
	}
	return &Job{Chunk: *body.Chunk, Generation: body.Generation, URL: body.URL}, nil
}

// Download fetches url into localPath, streamed in bounded chunks rather
// than buffered whole.
func (c *Client) Download(ctx context.Context, url, localPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.transfer.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch segment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("segment fetch returned %s", resp.Status)
	}

	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("failed to write local file: %w", err)
	}
	return nil
}

// UploadResult streams the processed file to the coordinator's result
// endpoint together with the segment name and claim generation it belongs to.
func (c *Client) UploadResult(ctx context.Context, chunkName string, generation uint64, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open result file: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		defer pw.Close()
		if err := mw.WriteField("chunk", chunkName); err != nil {
			pw.CloseWithError(err)
			return
		}
		if err := mw.WriteField("generation", strconv.FormatUint(generation, 10)); err != nil {
			pw.CloseWithError(err)
			return
		}
		part, err := mw.CreateFormFile("file", filepath.Base(filePath))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload_result", pr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.transfer.Do(req)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upload returned %s", resp.Status)
	}

	var body struct {
		OK      bool   `json:"ok"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("failed to decode upload response: %w", err)
	}
	if !body.OK {
		return fmt.Errorf("coordinator rejected upload: %s", body.Message)
	}
	return nil
}

// ReportResult sends the explicit completion report for a segment. It
// returns whether the coordinator still knows the segment under the given
// claim generation; false is non-fatal (the store may have been rebuilt
// underneath this worker).
func (c *Client) ReportResult(ctx context.Context, chunkName string, generation uint64) (bool, error) {
	payload, err := json.Marshal(map[string]any{"chunk": chunkName, "generation": generation})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/report_result", strings.NewReader(string(payload)))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.control.Do(req)
	if err != nil {
		return false, fmt.Errorf("report failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("report returned %s", resp.Status)
	}

	var body struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("failed to decode report response: %w", err)
	}
	return body.OK, nil
}
