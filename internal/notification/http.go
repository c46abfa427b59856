package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// StatusError is returned when an alert endpoint answers outside 2xx.
type StatusError struct {
	Channel string
	Status  int
	Body    string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Channel, e.Status)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Channel, e.Status, e.Body)
}

// postJSON posts v to url and returns the response body on 2xx.
func postJSON(ctx context.Context, client *http.Client, channel, url string, v interface{}) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal: %w", channel, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", channel, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: send: %w", channel, err)
	}
	defer resp.Body.Close()

	// Endpoints answer with short JSON; anything longer is truncated.
	out, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Channel: channel, Status: resp.StatusCode, Body: strings.TrimSpace(string(out))}
	}
	return out, nil
}
