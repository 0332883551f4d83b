// Package notify posts operator notifications to an ntfy-style endpoint.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Timeout bounds a single notification.
const Timeout = 5 * time.Second

// BusFailure tells the operator the relay is exiting because the bus is
// unreachable.
func BusFailure(ctx context.Context, client *http.Client, endpoint, busURL string, cause error) error {
	host, _ := os.Hostname()
	msg := fmt.Sprintf("event relay on %s is exiting: bus %s unreachable: %v", host, busURL, cause)
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()
	return Send(ctx, client, endpoint, msg)
}

// Send sends a message to the requested endpoint using HTTP POST.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	if endpoint == "" {
		return errors.New("notify: endpoint is empty")
	}
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Title", "event relay")
	req.Header.Set("Priority", "high")

	resp, err := c.Do(req)
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: status=%d", resp.StatusCode)
	}
	return nil
}
