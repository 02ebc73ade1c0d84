package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// GradeVerdict is the expected output of an open-answer grading prompt.
type GradeVerdict struct {
	Correct  bool   `json:"correct"`
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

// Evaluation is the expected output of a roleplay evaluation prompt.
type Evaluation struct {
	Score         int      `json:"score"`
	Verdict       string   `json:"verdict"`
	Strengths     []string `json:"strengths"`
	Improvements  []string `json:"improvements"`
	BetterExample string   `json:"better_example"`
}

// ParseGradeVerdict validates model text against the grading schema.
func ParseGradeVerdict(text string) (GradeVerdict, error) {
	var v GradeVerdict
	raw, err := extractJSON(text)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return v, fmt.Errorf("%w: grade verdict: %v", ErrInvalidOutput, err)
	}
	if v.Score < 0 || v.Score > 10 {
		return GradeVerdict{}, fmt.Errorf("%w: grade score %d out of range", ErrInvalidOutput, v.Score)
	}
	return v, nil
}

// ParseEvaluation validates model text against the evaluation schema.
// Strengths and improvements must be non-empty so the learner always gets
// actionable feedback.
func ParseEvaluation(text string) (Evaluation, error) {
	var e Evaluation
	raw, err := extractJSON(text)
	if err != nil {
		return e, err
	}
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return Evaluation{}, fmt.Errorf("%w: evaluation: %v", ErrInvalidOutput, err)
	}
	switch {
	case e.Score < 0 || e.Score > 10:
		return Evaluation{}, fmt.Errorf("%w: evaluation score %d out of range", ErrInvalidOutput, e.Score)
	case len(e.Strengths) == 0:
		return Evaluation{}, fmt.Errorf("%w: evaluation without strengths", ErrInvalidOutput)
	case len(e.Improvements) == 0:
		return Evaluation{}, fmt.Errorf("%w: evaluation without improvements", ErrInvalidOutput)
	}
	return e, nil
}

// TrimReply extracts a conversational line from model text. Models tend to
// wrap replies in quotes or code fences despite instructions.
func TrimReply(text string) (string, error) {
	s := strings.TrimSpace(text)
	s = strings.Trim(s, "`")
	s = strings.TrimSpace(strings.Trim(s, `"`))
	if s == "" {
		return "", fmt.Errorf("%w: empty reply", ErrInvalidOutput)
	}
	return s, nil
}

// extractJSON slices the first balanced-looking object out of model text,
// tolerating prose or fences around it.
func extractJSON(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("%w: no JSON object in model text", ErrInvalidOutput)
	}
	return text[start : end+1], nil
}
