package training

import (
	"fmt"
	"strings"
)

// ValidateSteps enforces the structural invariants every stored course must
// hold: dense 0-based indexes, exactly one content payload matching the
// declared kind, and well-formed kind payloads. Violations here are curator
// input errors, never runtime states.
func ValidateSteps(steps []Step) error {
	if len(steps) == 0 {
		return fmt.Errorf("course needs at least one step")
	}
	for i, s := range steps {
		if s.Index != i {
			return fmt.Errorf("step %d: index %d not dense", i, s.Index)
		}
		if strings.TrimSpace(s.Tag) == "" {
			return fmt.Errorf("step %d: missing tag", i)
		}
		set := 0
		if s.Quiz != nil {
			set++
		}
		if s.Open != nil {
			set++
		}
		if s.Roleplay != nil {
			set++
		}
		if set != 1 {
			return fmt.Errorf("step %d: want exactly one content payload, got %d", i, set)
		}
		switch s.Kind {
		case StepQuiz:
			if s.Quiz == nil {
				return fmt.Errorf("step %d: kind quiz without quiz content", i)
			}
			if err := validateQuiz(s.Quiz); err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
		case StepOpen:
			if s.Open == nil || s.Open.Prompt == "" {
				return fmt.Errorf("step %d: kind open needs a prompt", i)
			}
		case StepRoleplay:
			if s.Roleplay == nil {
				return fmt.Errorf("step %d: kind roleplay without scenario", i)
			}
			if err := validateScenario(s.Roleplay); err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
		default:
			return fmt.Errorf("step %d: unknown kind %q", i, s.Kind)
		}
	}
	return nil
}

func validateQuiz(q *QuizContent) error {
	if q.Prompt == "" {
		return fmt.Errorf("quiz needs a prompt")
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("quiz needs at least two options")
	}
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return fmt.Errorf("correct_index %d out of range", q.CorrectIndex)
	}
	return nil
}

func validateScenario(sc *Scenario) error {
	switch {
	case sc.Situation == "":
		return fmt.Errorf("scenario needs a situation")
	case sc.LearnerRole == "":
		return fmt.Errorf("scenario needs a learner role")
	case sc.Goal == "":
		return fmt.Errorf("scenario needs a goal")
	case sc.Persona == "":
		return fmt.Errorf("scenario needs a persona")
	case sc.OpeningLine == "":
		return fmt.Errorf("scenario needs a precomputed opening line")
	case sc.TotalTurns != RoleplayTurns:
		return fmt.Errorf("scenario total_turns must be %d", RoleplayTurns)
	}
	return nil
}
