package api

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/OCAP2/mpmc/internal/model"
)

// Client publishes run results to a results server.
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

// Healthcheck checks if the results server is reachable.
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

// UploadRun sends the run, including its samples, as a gzipped JSON file.
func (c *Client) UploadRun(run *model.Run) error {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	filename := fmt.Sprintf("run_%s_%d.json.gz", run.Backend, run.StartedAt.Unix())

	errCh := make(chan error, 1)
	go func() {
		errCh <- writeRunForm(writer, c.apiKey, filename, run)
		writer.Close()
		pw.Close()
	}()

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/v1/runs/add", pr)
	if err != nil {
		pr.Close()
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		<-errCh
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upload returned status %d", resp.StatusCode)
	}
	return <-errCh
}

func writeRunForm(writer *multipart.Writer, secret, filename string, run *model.Run) error {
	fields := [][2]string{
		{"secret", secret},
		{"filename", filename},
		{"backend", run.Backend},
		{"throughput", strconv.FormatFloat(run.Throughput, 'f', 2, 64)},
		{"violations", strconv.FormatInt(run.Violations(), 10)},
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return fmt.Errorf("failed to write field %s: %w", f[0], err)
		}
	}

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	gz := gzip.NewWriter(part)
	if err := json.NewEncoder(gz).Encode(run); err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to compress run: %w", err)
	}
	return nil
}
