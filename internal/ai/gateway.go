// Package ai is the only path to the model service. It owns timeouts, the
// retry budget, rate limiting, and the per-call audit trail; callers never
// talk to the upstream directly.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/skillpilot/skillpilot-core/internal/audit"
)

var (
	// ErrTimeout covers the per-call deadline and caller cancellation.
	// Timed-out calls are never retried.
	ErrTimeout = errors.New("ai timeout")

	// ErrUpstream covers transport failures and non-200 responses.
	ErrUpstream = errors.New("ai upstream error")

	// ErrInvalidOutput covers model text that fails schema validation.
	ErrInvalidOutput = errors.New("ai invalid output")
)

// Prompt families, recorded per call in the audit trail.
const (
	KindGradeOpen    = "grade_open"
	KindRoleplayTurn = "roleplay_turn"
	KindRoleplayEval = "roleplay_eval"
)

// Request names the prompt family and grounding provenance so the audit
// trail can answer "what did we send and on what basis".
type Request struct {
	Kind        string
	Prompt      string
	FragmentIDs []string
}

type Result struct {
	Text          string
	LatencyMS     int64
	CorrelationID string
	Retried       bool
}

type Gateway struct {
	http     *resty.Client
	baseURL  string
	model    string
	timeout  time.Duration
	retryMax int
	limiter  *rate.Limiter
	audit    *audit.Logger
}

type Option func(*Gateway)

func WithTimeout(d time.Duration) Option { return func(g *Gateway) { g.timeout = d } }

// WithRetryMax bounds retries of transient upstream failures. Zero disables
// retrying entirely.
func WithRetryMax(n int) Option { return func(g *Gateway) { g.retryMax = n } }

func WithRatePerSec(rps float64) Option {
	return func(g *Gateway) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithAuditLogger(a *audit.Logger) Option { return func(g *Gateway) { g.audit = a } }

func New(baseURL, model string, opts ...Option) *Gateway {
	g := &Gateway{
		http:     resty.New(),
		baseURL:  baseURL,
		model:    model,
		timeout:  90 * time.Second,
		retryMax: 1,
		limiter:  rate.NewLimiter(rate.Limit(4), 4),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate performs one model call. Every call, success or failure, leaves
// exactly one audit entry carrying its correlation id.
func (g *Gateway) Generate(ctx context.Context, req Request) (Result, error) {
	corrID := uuid.NewString()
	start := time.Now()

	text, retried, err := g.generateOnce(ctx, req.Prompt)
	latency := time.Since(start).Milliseconds()

	entry := audit.Entry{
		CorrelationID: corrID,
		Kind:          req.Kind,
		FragmentIDs:   req.FragmentIDs,
		LatencyMS:     latency,
		Retried:       retried,
	}
	if err != nil {
		entry.Outcome = outcomeOf(err)
		entry.Error = err.Error()
		g.record(entry)
		return Result{CorrelationID: corrID, LatencyMS: latency, Retried: retried}, err
	}
	entry.Outcome = audit.OutcomeOK
	g.record(entry)
	return Result{Text: text, LatencyMS: latency, CorrelationID: corrID, Retried: retried}, nil
}

func (g *Gateway) generateOnce(ctx context.Context, prompt string) (string, bool, error) {
	retried := false
	for attempt := 0; ; attempt++ {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", retried, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		text, transient, err := g.call(ctx, prompt)
		if err == nil {
			return text, retried, nil
		}
		// Timeouts burn the whole budget; retry only transient upstream
		// failures, and only once by default.
		if errors.Is(err, ErrTimeout) || !transient || attempt >= g.retryMax {
			return "", retried, err
		}
		retried = true
	}
}

// call performs a single upstream POST. The bool reports whether the failure
// is transient (connection-level or 5xx) and thus retry-eligible.
func (g *Gateway) call(ctx context.Context, prompt string) (string, bool, error) {
	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.http.R().
		SetContext(cctx).
		SetHeader("Content-Type", "application/json").
		SetBody(generateRequest{Model: g.model, Prompt: prompt, Stream: false}).
		Post(g.baseURL)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", false, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", true, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if resp.StatusCode() != 200 {
		transient := resp.StatusCode() >= 500
		return "", transient, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode())
	}

	var out generateResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", false, fmt.Errorf("%w: decode envelope: %v", ErrUpstream, err)
	}
	if out.Response == "" {
		return "", false, fmt.Errorf("%w: empty response field", ErrUpstream)
	}
	return out.Response, false, nil
}

func (g *Gateway) record(e audit.Entry) {
	if g.audit != nil {
		g.audit.Record(e)
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return audit.OutcomeTimeout
	case errors.Is(err, ErrInvalidOutput):
		return audit.OutcomeInvalidOutput
	default:
		return audit.OutcomeUpstreamError
	}
}
