package grading

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/skillpilot/skillpilot-core/internal/ai"
	"github.com/skillpilot/skillpilot-core/internal/knowledge"
)

// openStrategy grades free-text answers through the model gateway, grounded
// in course material. Model failures degrade to a neutral accepted result
// instead of blocking the learner; the degraded flag keeps the record honest.
type openStrategy struct {
	gen Generator
	src GroundingSource
}

func (s openStrategy) Grade(ctx context.Context, task Task, answer string) (Result, error) {
	if strings.TrimSpace(answer) == "" {
		return Result{}, fmt.Errorf("%w: empty answer", ErrBadAnswer)
	}
	if s.gen == nil {
		return degradedResult(), nil
	}

	var grounding knowledge.Grounding
	if s.src != nil {
		g, err := s.src.Select(ctx, task.CourseID, task.Tag+" "+task.Prompt, 0)
		if err != nil {
			log.Printf("grading: grounding select for step %s: %v", task.StepID, err)
		} else {
			grounding = g
		}
	}

	res, err := s.gen.Generate(ctx, ai.Request{
		Kind:        ai.KindGradeOpen,
		Prompt:      gradePrompt(task.Prompt, answer, grounding),
		FragmentIDs: grounding.FragmentIDs,
	})
	if err != nil {
		log.Printf("grading: model call for step %s failed, degrading: %v", task.StepID, err)
		return degradedResult(), nil
	}
	verdict, err := ai.ParseGradeVerdict(res.Text)
	if err != nil {
		log.Printf("grading: verdict parse for step %s failed, degrading: %v", task.StepID, err)
		return degradedResult(), nil
	}
	return Result{Correct: verdict.Correct, Score: verdict.Score, Feedback: verdict.Feedback}, nil
}

func degradedResult() Result {
	return Result{
		Correct:  true,
		Score:    DegradedScore,
		Feedback: "Answer recorded. Automatic review was unavailable, so a neutral score was applied.",
		Degraded: true,
	}
}

func gradePrompt(question, answer string, grounding knowledge.Grounding) string {
	var b strings.Builder
	b.WriteString("You are grading a corporate training exercise.\n")
	if block := grounding.PromptBlock(); block != "" {
		b.WriteString(block)
		b.WriteString("\n")
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\nLearner answer: ")
	b.WriteString(answer)
	b.WriteString("\n\nJudge the answer against the course material. Respond with ONLY a JSON object:\n")
	b.WriteString(`{"correct": true|false, "score": 0-10, "feedback": "one or two sentences for the learner"}`)
	return b.String()
}
