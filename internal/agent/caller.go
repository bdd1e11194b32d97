package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"
)

// Kind classifies a remote call attempt so the orchestrator can pick the
// right follow-up: accept the result, refuse retry, fall back to the
// simulator, or mark the ticket terminally failed.
type Kind int

const (
	// KindSuccess: the agent ran and returned a result body.
	KindSuccess Kind = iota
	// KindPrecondition: the agent rejected the request (unknown ticket,
	// wrong status). Retrying or simulating won't help.
	KindPrecondition
	// KindTimeout: the call exceeded the stage deadline. The ticket goes to
	// a terminal error status regardless of fallback policy.
	KindTimeout
	// KindTransient: connection failures and unexpected statuses. The
	// simulator may take over unless fallback is disabled.
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindPrecondition:
		return "precondition"
	case KindTimeout:
		return "timeout"
	default:
		return "transient"
	}
}

// Outcome is the classified result of one remote stage call.
type Outcome struct {
	Kind       Kind
	StatusCode int
	Body       map[string]any
	ElapsedMS  int64
	Err        string
}

// Caller posts a ticket ID to one remote stage agent.
type Caller struct {
	url        string
	key        string
	timeout    time.Duration
	retryDelay time.Duration
	client     *http.Client
	logger     *slog.Logger
	stage      string // "stage_b" / "stage_c", for log events
}

func NewCaller(stage, url, key string, timeout, retryDelay time.Duration, logger *slog.Logger) *Caller {
	return &Caller{
		url:        url,
		key:        key,
		timeout:    timeout,
		retryDelay: retryDelay,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
		stage:      stage,
	}
}

// Configured reports whether a remote endpoint is set at all.
func (c *Caller) Configured() bool { return c.url != "" }

// URL exposes the resolved endpoint for dev-mode checks.
func (c *Caller) URL() string { return c.url }

// Call runs the remote agent for a ticket, retrying once after a cold-start
// 503 before classifying the attempt.
func (c *Caller) Call(ctx context.Context, ticketID string) Outcome {
	start := time.Now()
	c.logger.Info(c.stage+".call.start", "ticket_id", ticketID, "url", c.url)

	out := c.post(ctx, ticketID)
	if out.StatusCode == http.StatusServiceUnavailable {
		c.logger.Warn(c.stage+".call.cold_start", "ticket_id", ticketID,
			"retry_delay", c.retryDelay.String())
		select {
		case <-time.After(c.retryDelay):
		case <-ctx.Done():
			return c.finish(ticketID, start, Outcome{
				Kind: KindTimeout,
				Err:  fmt.Sprintf("call cancelled during 503 retry wait: %v", ctx.Err()),
			})
		}
		retry := c.post(ctx, ticketID)
		if retry.Kind == KindSuccess {
			return c.finish(ticketID, start, retry)
		}
		// Keep the retry's classification unless it is another 503, which
		// stays transient.
		out = retry
	}
	return c.finish(ticketID, start, out)
}

func (c *Caller) finish(ticketID string, start time.Time, out Outcome) Outcome {
	out.ElapsedMS = time.Since(start).Milliseconds()
	c.logger.Info(c.stage+".call.done",
		"ticket_id", ticketID, "kind", out.Kind.String(),
		"status", out.StatusCode, "elapsed_ms", out.ElapsedMS)
	return out
}

func (c *Caller) post(ctx context.Context, ticketID string) Outcome {
	payload, _ := json.Marshal(map[string]string{"ticketId": ticketID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return Outcome{Kind: KindTransient, Err: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.key != "" {
		req.Header.Set("x-functions-key", c.key)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return Outcome{
				Kind: KindTimeout,
				Err:  fmt.Sprintf("agent call timed out after %s", c.timeout),
			}
		}
		return Outcome{Kind: KindTransient, Err: fmt.Sprintf("agent call failed: %v", err)}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var body map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return Outcome{
				Kind:       KindTransient,
				StatusCode: resp.StatusCode,
				Err:        fmt.Sprintf("decode agent response: %v", err),
			}
		}
		return Outcome{Kind: KindSuccess, StatusCode: resp.StatusCode, Body: body}

	case http.StatusNotFound:
		return Outcome{
			Kind:       KindPrecondition,
			StatusCode: resp.StatusCode,
			Err:        "ticket not found by processing function",
		}

	case http.StatusConflict:
		msg := "status conflict"
		var body map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
			if e, ok := body["error"].(string); ok && e != "" {
				msg = e
			}
		}
		return Outcome{Kind: KindPrecondition, StatusCode: resp.StatusCode, Err: msg}

	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return Outcome{
			Kind:       KindTransient,
			StatusCode: resp.StatusCode,
			Err:        fmt.Sprintf("agent returned %d: %s", resp.StatusCode, snippet),
		}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
