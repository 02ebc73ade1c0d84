// Package grading scores submitted answers. One strategy per step kind;
// roleplay steps are scored by their dialogue evaluation, not here.
package grading

import (
	"context"
	"errors"
	"fmt"

	"github.com/skillpilot/skillpilot-core/internal/ai"
	"github.com/skillpilot/skillpilot-core/internal/knowledge"
)

// Step kinds this engine can grade.
const (
	KindQuiz = "quiz"
	KindOpen = "open"
)

const (
	// MaxScore is the per-attempt score ceiling on the platform's 0-10 scale.
	MaxScore = 10

	// DegradedScore is the neutral score applied when AI grading is
	// unavailable. The learner is never blocked on model failures.
	DegradedScore = 5
)

// ErrBadAnswer marks a malformed submission (wrong shape for the step
// kind). No attempt is recorded for these.
var ErrBadAnswer = errors.New("bad answer")

// Task is a minimal view of a step needed for grading. Keep this in sync
// with whatever fields your store uses.
type Task struct {
	StepID       string
	CourseID     string
	Kind         string
	Tag          string
	Prompt       string
	Options      []string // quiz only
	CorrectIndex int      // quiz only
	Explanation  string   // quiz only
}

// Result is the outcome of grading one submitted answer.
type Result struct {
	Correct  bool
	Score    int // 0..MaxScore
	Feedback string
	Degraded bool
}

// Strategy grades a single submission.
type Strategy interface {
	Grade(ctx context.Context, task Task, answer string) (Result, error)
}

// Engine routes by step kind to the correct Strategy.
type Engine interface {
	Grade(ctx context.Context, task Task, answer string) (Result, error)
}

// Generator is the model surface open-answer grading needs.
type Generator interface {
	Generate(ctx context.Context, req ai.Request) (ai.Result, error)
}

// GroundingSource selects course material for grading prompts.
type GroundingSource interface {
	Select(ctx context.Context, courseID, topic string, maxFragments int) (knowledge.Grounding, error)
}

type defaultEngine struct {
	strategies map[string]Strategy
}

func (e *defaultEngine) Grade(ctx context.Context, task Task, answer string) (Result, error) {
	s, ok := e.strategies[task.Kind]
	if !ok {
		return Result{}, fmt.Errorf("%w: step kind %q is not answerable here", ErrBadAnswer, task.Kind)
	}
	return s.Grade(ctx, task, answer)
}

type Option func(*config)

type config struct {
	gen Generator
	src GroundingSource
}

// WithOpenGrading wires the model gateway and grounder into the open-answer
// strategy. Without it open answers fall back to the degraded default.
func WithOpenGrading(gen Generator, src GroundingSource) Option {
	return func(c *config) {
		c.gen = gen
		c.src = src
	}
}

// NewEngine installs the built-in strategies.
func NewEngine(opts ...Option) Engine {
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}
	return &defaultEngine{
		strategies: map[string]Strategy{
			KindQuiz: quizStrategy{},
			KindOpen: openStrategy{gen: cfg.gen, src: cfg.src},
		},
	}
}
