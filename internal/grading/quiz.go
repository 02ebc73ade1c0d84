package grading

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// quizStrategy checks the submitted option index against the answer key.
// Deterministic; never consults the model.
type quizStrategy struct{}

func (quizStrategy) Grade(_ context.Context, task Task, answer string) (Result, error) {
	idx, err := strconv.Atoi(strings.TrimSpace(answer))
	if err != nil {
		return Result{}, fmt.Errorf("%w: quiz answer must be an option index", ErrBadAnswer)
	}
	if idx < 0 || idx >= len(task.Options) {
		return Result{}, fmt.Errorf("%w: option index %d out of range", ErrBadAnswer, idx)
	}
	if idx == task.CorrectIndex {
		return Result{Correct: true, Score: MaxScore, Feedback: task.Explanation}, nil
	}
	return Result{Correct: false, Score: 0, Feedback: task.Explanation}, nil
}
