package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srun-soft/websniffer/internal/record"
)

const (
	DefaultBaseURL = "http://127.0.0.1:6000"
	DefaultPath    = "/api/packet/post"
	DefaultTimeout = 3 * time.Second
)

// StatusError is returned when the backend answers with anything but 200.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Body)
}

// URL joins the backend base URL and the post path.
func URL(base, path string) string {
	if base == "" {
		base = DefaultBaseURL
	}
	if path == "" {
		path = DefaultPath
	}
	if strings.HasSuffix(base, "/") && strings.HasPrefix(path, "/") {
		path = path[1:]
	}
	return base + path
}

// Client posts Website events to the backend. One request per event, no retry.
type Client struct {
	url  string
	http *http.Client
	log  logrus.FieldLogger
}

func NewClient(url string, timeout time.Duration, log logrus.FieldLogger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		url:  url,
		http: &http.Client{Timeout: timeout},
		log:  log.WithField("component", "report"),
	}
}

func (c *Client) URL() string {
	return c.url
}

// Report sends w as a JSON body.
func (c *Client) Report(ctx context.Context, w record.Website) error {
	body, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post report to %s: %w", c.url, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return &StatusError{StatusCode: res.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	_, _ = io.Copy(io.Discard, res.Body)
	c.log.WithField("website", w.Website).Info("Successfully reported")
	return nil
}
