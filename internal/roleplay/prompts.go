package roleplay

import (
	"fmt"
	"strings"

	"github.com/skillpilot/skillpilot-core/internal/knowledge"
	"github.com/skillpilot/skillpilot-core/internal/training"
)

func scenarioBlock(sc training.Scenario) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Situation: %s\n", sc.Situation)
	fmt.Fprintf(&b, "Your persona: %s\n", sc.Persona)
	fmt.Fprintf(&b, "The learner plays: %s\n", sc.LearnerRole)
	fmt.Fprintf(&b, "The learner's goal: %s\n", sc.Goal)
	if sc.Constraints != "" {
		fmt.Fprintf(&b, "Constraints: %s\n", sc.Constraints)
	}
	return b.String()
}

func transcriptBlock(turns []Turn) string {
	var b strings.Builder
	b.WriteString("Dialogue so far:\n")
	for _, t := range turns {
		speaker := "You"
		if t.Role == RoleLearner {
			speaker = "Learner"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, t.Text)
	}
	return b.String()
}

func turnPrompt(sc training.Scenario, transcript []Turn, learnerText string, grounding knowledge.Grounding) string {
	var b strings.Builder
	b.WriteString("You are playing a character in a workplace training roleplay.\n")
	b.WriteString(scenarioBlock(sc))
	if block := grounding.PromptBlock(); block != "" {
		b.WriteString(block)
		b.WriteString("\n")
	}
	b.WriteString(transcriptBlock(transcript))
	fmt.Fprintf(&b, "Learner: %s\n\n", learnerText)
	b.WriteString("Reply in character with your next line only. ")
	b.WriteString("Stay realistic and keep the learner working toward their goal. ")
	b.WriteString("No narration, no JSON, just the spoken line.")
	return b.String()
}

func evalPrompt(sc training.Scenario, transcript []Turn, grounding knowledge.Grounding) string {
	var b strings.Builder
	b.WriteString("You are evaluating a learner's performance in a workplace training roleplay.\n")
	b.WriteString(scenarioBlock(sc))
	if block := grounding.PromptBlock(); block != "" {
		b.WriteString(block)
		b.WriteString("\n")
	}
	b.WriteString(transcriptBlock(transcript))
	b.WriteString("\nAssess how well the learner pursued their goal. Respond with ONLY a JSON object:\n")
	b.WriteString(`{"score": 0-10, "verdict": "one sentence", "strengths": ["..."], "improvements": ["..."], "better_example": "a stronger line the learner could have used"}`)
	return b.String()
}
