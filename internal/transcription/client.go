// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package transcription drives an asynchronous speech-to-text provider:
// upload audio, create a job, poll until it finishes.
package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuGH/therapyflow/internal/log"
	"github.com/ManuGH/therapyflow/internal/resilience"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const (
	maxResponseBytes = 8 << 20
	maxErrorBody     = 512
)

// PollPolicy bounds how a job is awaited.
type PollPolicy struct {
	Interval    time.Duration // first wait between polls
	MaxInterval time.Duration // cap for backoff growth
	Backoff     float64       // multiplier per poll; 1.0 keeps the interval fixed
	MaxPolls    int           // 0 = unbounded within Timeout
	Timeout     time.Duration // overall deadline for upload+job; 0 = none
}

// DefaultPollPolicy polls every 3s for at most 10 minutes.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		Interval:    3 * time.Second,
		MaxInterval: 30 * time.Second,
		Backoff:     1.0,
		Timeout:     10 * time.Minute,
	}
}

func (p PollPolicy) next(cur time.Duration) time.Duration {
	if p.Backoff <= 1.0 {
		return cur
	}
	n := time.Duration(float64(cur) * p.Backoff)
	if p.MaxInterval > 0 && n > p.MaxInterval {
		n = p.MaxInterval
	}
	return n
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	AuthScheme string // optional prefix such as "Bearer"

	Poll           PollPolicy
	RequestTimeout time.Duration

	RequestsPerSecond float64 // 0 disables client-side limiting
	Burst             int

	BreakerThreshold int
	BreakerReset     time.Duration

	HTTPClient *http.Client
}

// Client talks to an AssemblyAI-compatible transcription API.
// It is safe for concurrent use; the rate limiter and breaker are shared by
// every caller.
type Client struct {
	base       string
	authHeader string
	poll       PollPolicy
	http       *http.Client
	limiter    *rate.Limiter
	breaker    *resilience.CircuitBreaker
}

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("transcription: base URL is required")
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("transcription: invalid base URL: %w", err)
	}
	poll := cfg.Poll
	if poll.Interval <= 0 {
		poll = DefaultPollPolicy()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	header := strings.TrimSpace(cfg.APIKey)
	if header != "" && cfg.AuthScheme != "" {
		header = cfg.AuthScheme + " " + cfg.APIKey
	}

	return &Client{
		base:       strings.TrimRight(cfg.BaseURL, "/"),
		authHeader: header,
		poll:       poll,
		http:       httpClient,
		limiter:    limiter,
		breaker: resilience.NewCircuitBreaker("transcription", cfg.BreakerThreshold, cfg.BreakerReset,
			resilience.WithFailurePredicate(func(err error) bool { return errors.Is(err, ErrTransport) })),
	}, nil
}

// BreakerState exposes the breaker for readiness reporting.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type jobRequest struct {
	AudioURL          string `json:"audio_url"`
	LanguageDetection bool   `json:"language_detection"`
}

type jobResponse struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	Text   *string `json:"text"`
	Error  string  `json:"error"`
}

const (
	jobCompleted = "completed"
	jobError     = "error"
)

// SubmitAndAwait uploads audio, creates a job and polls until it reaches a
// terminal state. Every failure is returned as *Error.
func (c *Client) SubmitAndAwait(ctx context.Context, audio []byte, filename string) (text string, err error) {
	start := time.Now()
	polls := 0
	defer func() {
		jobDuration.WithLabelValues(outcomeLabel(err)).Observe(time.Since(start).Seconds())
		pollsPerJob.Observe(float64(polls))
	}()

	if c.poll.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.poll.Timeout)
		defer cancel()
	}
	logger := log.WithComponentFromContext(ctx, "transcription")

	var up uploadResponse
	if err := c.do(ctx, "upload", http.MethodPost, "/upload", "application/octet-stream", bytes.NewReader(audio), "", &up); err != nil {
		return "", err
	}
	if up.UploadURL == "" {
		return "", &Error{Kind: KindMalformed, Op: "upload", Message: "missing upload_url"}
	}

	body, err := json.Marshal(jobRequest{AudioURL: up.UploadURL, LanguageDetection: true})
	if err != nil {
		return "", &Error{Kind: KindMalformed, Op: "submit", Err: err}
	}
	var job jobResponse
	if err := c.do(ctx, "submit", http.MethodPost, "/transcript", "application/json", bytes.NewReader(body), "", &job); err != nil {
		return "", err
	}
	if job.ID == "" {
		return "", &Error{Kind: KindMalformed, Op: "submit", Message: "missing job id"}
	}
	logger.Debug().Str(log.FieldJobID, job.ID).Str("file", filename).Int("bytes", len(audio)).Msg("transcription job created")

	wait := c.poll.Interval
	for {
		if done, text, err := terminalState(job); done {
			return text, err
		}
		if c.poll.MaxPolls > 0 && polls >= c.poll.MaxPolls {
			return "", &Error{Kind: KindTimeout, Op: "poll", JobID: job.ID,
				Message: fmt.Sprintf("still %q after %d polls", job.Status, polls)}
		}
		if err := sleep(ctx, wait); err != nil {
			return "", contextError("poll", job.ID, err)
		}
		wait = c.poll.next(wait)

		polls++
		id := job.ID
		job = jobResponse{}
		if err := c.do(ctx, "poll", http.MethodGet, "/transcript/"+url.PathEscape(id), "", nil, id, &job); err != nil {
			return "", err
		}
		if job.ID == "" {
			job.ID = id
		}
		logger.Debug().Str(log.FieldJobID, id).Int(log.FieldAttempt, polls).Str("status", job.Status).Msg("transcription poll")
	}
}

func terminalState(job jobResponse) (bool, string, error) {
	switch job.Status {
	case jobCompleted:
		if job.Text == nil {
			return true, "", nil
		}
		return true, *job.Text, nil
	case jobError:
		msg := job.Error
		if msg == "" {
			msg = "provider reported error without detail"
		}
		return true, "", &Error{Kind: KindProvider, Op: "poll", JobID: job.ID, Message: msg}
	}
	return false, "", nil
}

// do performs one rate-limited, breaker-guarded request and decodes a JSON
// response into out.
func (c *Client) do(ctx context.Context, op, method, path, contentType string, body io.Reader, jobID string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		// Wait also fails early when the deadline cannot fit the next token.
		cause := ctx.Err()
		if cause == nil {
			cause = context.DeadlineExceeded
		}
		return contextError(op, jobID, cause)
	}

	var result error
	err := c.breaker.Execute(func() error {
		result = c.roundTrip(ctx, op, method, path, contentType, body, jobID, out)
		return result
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		requestsTotal.WithLabelValues(op, string(KindUnavailable)).Inc()
		return &Error{Kind: KindUnavailable, Op: op, JobID: jobID,
			Err: fmt.Errorf("%w, retry in %s", err, c.breaker.RetryIn().Round(time.Second))}
	}
	requestsTotal.WithLabelValues(op, outcomeLabel(result)).Inc()
	return result
}

func (c *Client) roundTrip(ctx context.Context, op, method, path, contentType string, body io.Reader, jobID string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return &Error{Kind: KindTransport, Op: op, JobID: jobID, Err: err}
	}
	if c.authHeader != "" {
		req.Header.Set("authorization", c.authHeader)
	}
	req.Header.Set("accept", "application/json")
	if contentType != "" {
		req.Header.Set("content-type", contentType)
	}

	res, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return contextError(op, jobID, ctx.Err())
		}
		return &Error{Kind: KindTransport, Op: op, JobID: jobID, Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxResponseBytes))
		_ = res.Body.Close()
	}()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		kind := KindProvider
		if res.StatusCode >= 500 {
			kind = KindTransport
		}
		return &Error{Kind: kind, Op: op, JobID: jobID, Status: res.StatusCode, Message: strings.TrimSpace(string(snippet))}
	}

	if err := json.NewDecoder(io.LimitReader(res.Body, maxResponseBytes)).Decode(out); err != nil {
		if ctx.Err() != nil {
			return contextError(op, jobID, ctx.Err())
		}
		return &Error{Kind: KindMalformed, Op: op, JobID: jobID, Status: res.StatusCode, Err: err}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
