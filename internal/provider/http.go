// http.go holds the transport shared by the HTTP providers: client
// construction, JSON POSTs with status classification, and line readers for
// server-sent events and newline-delimited JSON.
package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const maxLineSize = 1024 * 1024

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// postJSON sends payload and returns the open response for a 2xx status.
// Any other status is drained and classified.
func postJSON(ctx context.Context, client *http.Client, providerName, model, url string, headers map[string]string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyTransport(providerName, model, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		_ = resp.Body.Close()
		return nil, classifyHTTP(providerName, model, resp.StatusCode, resp.Header, string(data))
	}
	return resp, nil
}

// readSSE calls fn with the payload of every "data:" line. It stops at a
// "[DONE]" sentinel or end of stream.
func readSSE(r io.Reader, fn func(data string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return nil
		}
		if err := fn(data); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// readNDJSON calls fn with every non-empty line.
func readNDJSON(r io.Reader, fn func(line []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// streamError separates errors raised by the caller's chunk handler from
// transport failures, which are classified.
type streamError struct{ err error }

func (e streamError) Error() string { return e.err.Error() }

// deliver forwards a chunk, tagging handler errors so they pass through unclassified.
func deliver(onChunk func(string) error, text string) error {
	if text == "" {
		return nil
	}
	if err := onChunk(text); err != nil {
		return streamError{err: err}
	}
	return nil
}

// finishStream resolves the error returned by a reader loop.
func finishStream(providerName, model string, err error) error {
	if err == nil {
		return nil
	}
	if se, ok := err.(streamError); ok {
		return se.err
	}
	return classifyTransport(providerName, model, err)
}
