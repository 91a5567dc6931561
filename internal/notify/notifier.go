// Package notify posts progress and terminal callbacks to the
// caller-supplied HTTP endpoint.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"mediaqueue/internal/domain"
	"mediaqueue/internal/metrics"
)

const (
	userAgent       = "MediaQueue/1.0"
	callbackTimeout = 10 * time.Second
)

// ProgressUpdate is the non-terminal callback payload.
type ProgressUpdate struct {
	PostID       string           `json:"postId"`
	Progress     float64          `json:"progress"`
	Message      string           `json:"message"`
	Attempt      int              `json:"attempt"`
	Status       domain.JobStatus `json:"status"`
	Type         string           `json:"type"`
	CurrentMedia int              `json:"currentMedia"`
	TotalMedia   int              `json:"totalMedia"`
}

// SuccessNotice is the terminal success payload; MediaResults carries the
// cached result bytes verbatim.
type SuccessNotice struct {
	PostID         string            `json:"postId"`
	MediaResults   []json.RawMessage `json:"mediaResults"`
	TotalProcessed int               `json:"totalProcessed"`
	Attempt        int               `json:"attempt"`
	Status         domain.JobStatus  `json:"status"`
	Progress       float64           `json:"progress"`
	Message        string            `json:"message"`
}

// FailureNotice is the terminal failure payload. Progress carries the
// unchanged max so observers never see a retreat.
type FailureNotice struct {
	PostID   string           `json:"postId"`
	Error    string           `json:"error"`
	Attempt  int              `json:"attempt"`
	Status   domain.JobStatus `json:"status"`
	Progress float64          `json:"progress"`
	Message  string           `json:"message"`
}

// HTTPNotifier posts JSON callbacks with a short timeout. A failing post is
// the caller's problem to log, never to raise: terminal state is already
// determined by the time a callback goes out.
type HTTPNotifier struct {
	client *http.Client
	logger *slog.Logger
}

func NewHTTPNotifier(client *http.Client, logger *slog.Logger) *HTTPNotifier {
	if client == nil {
		client = &http.Client{
			Timeout:   callbackTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &HTTPNotifier{client: client, logger: logger}
}

func (n *HTTPNotifier) Progress(ctx context.Context, url string, update ProgressUpdate) error {
	return n.post(ctx, url, "progress", update)
}

func (n *HTTPNotifier) Success(ctx context.Context, url string, notice SuccessNotice) error {
	return n.post(ctx, url, "success", notice)
}

func (n *HTTPNotifier) Failure(ctx context.Context, url string, notice FailureNotice) error {
	return n.post(ctx, url, "failed", notice)
}

func (n *HTTPNotifier) post(ctx context.Context, url, kind string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s callback: %w", kind, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s callback: %w", kind, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := n.client.Do(req)
	if err != nil {
		metrics.CallbackErrorsTotal.Inc()
		return fmt.Errorf("post %s callback: %w", kind, err)
	}
	defer resp.Body.Close()

	metrics.CallbackPostsTotal.WithLabelValues(kind).Inc()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.CallbackErrorsTotal.Inc()
		return fmt.Errorf("%s callback rejected with status %d", kind, resp.StatusCode)
	}
	return nil
}
