// seedctl loads a demo course into the gateway's database: three steps
// (quiz, open answer, roleplay), a small knowledge corpus, and a published
// course ready for enrollment. Intended for dev setups and smoke tests.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/skillpilot/skillpilot-core/internal/config"
	"github.com/skillpilot/skillpilot-core/internal/db"
	"github.com/skillpilot/skillpilot-core/internal/training"
)

func main() {
	curator := flag.String("curator", "curator", "curator id to own the demo course")
	title := flag.String("title", "Customer Support Fundamentals", "course title")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using process env")
	}
	cfg := config.FromEnv()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	store := training.NewSQLStore(dbh)

	courseID := uuid.NewString()
	course := training.Course{
		ID:        courseID,
		Title:     *title,
		CuratorID: *curator,
		CreatedAt: time.Now().Unix(),
	}
	if err := store.PutCourse(ctx, course); err != nil {
		log.Fatalf("put course: %v", err)
	}

	steps := demoSteps(courseID)
	if err := training.ValidateSteps(steps); err != nil {
		log.Fatalf("demo steps invalid: %v", err)
	}
	if err := store.ReplaceSteps(ctx, courseID, steps); err != nil {
		log.Fatalf("replace steps: %v", err)
	}
	if err := store.ReplaceFragments(ctx, courseID, demoFragments(courseID)); err != nil {
		log.Fatalf("replace fragments: %v", err)
	}
	if _, err := store.PublishCourse(ctx, courseID); err != nil {
		log.Fatalf("publish: %v", err)
	}

	log.Printf("seeded course %s (%q) with %d steps", courseID, *title, len(steps))
}

func demoSteps(courseID string) []training.Step {
	return []training.Step{
		{
			ID: uuid.NewString(), CourseID: courseID, Index: 0,
			Kind: training.StepQuiz, Tag: "refund-policy",
			Quiz: &training.QuizContent{
				Prompt: "A customer bought a subscription 45 days ago and asks for a full refund. What does the policy allow?",
				Options: []string{
					"Full refund, no questions asked",
					"Pro-rated refund for the unused period",
					"No refund after 30 days under any circumstances",
					"Store credit only",
				},
				CorrectIndex: 1,
				Explanation:  "After the 30-day full-refund window, the unused remainder is refunded pro rata.",
			},
		},
		{
			ID: uuid.NewString(), CourseID: courseID, Index: 1,
			Kind: training.StepOpen, Tag: "empathy",
			Open: &training.OpenContent{
				Prompt: "A customer writes: \"Your update deleted a week of my work. I'm done with you.\" Draft the first two sentences of your reply.",
			},
		},
		{
			ID: uuid.NewString(), CourseID: courseID, Index: 2,
			Kind: training.StepRoleplay, Tag: "escalation",
			Roleplay: &training.Scenario{
				Situation:   "A long-time customer calls about being billed twice this month and has already been transferred twice.",
				LearnerRole: "Support agent handling the escalation",
				Goal:        "Acknowledge the double billing, commit to a concrete resolution, and keep the customer from churning.",
				Constraints: "Do not promise compensation beyond the duplicate charge without approval.",
				Persona:     "Frustrated but reasonable; softens quickly when given specifics.",
				OpeningLine: "Third time I'm explaining this now. You charged me twice and nobody can tell me why.",
				TotalTurns:  training.RoleplayTurns,
			},
		},
	}
}

func demoFragments(courseID string) []training.KnowledgeFragment {
	frags := []struct {
		tag     string
		content string
	}{
		{"refund-policy", "Refund policy: purchases cancel with a full refund inside 30 days. From day 31, the unused subscription period is refunded pro rata. Store credit is offered only when the customer asks for it."},
		{"refund-policy", "Duplicate charges are reversed in full within 3 business days regardless of account age, and the agent confirms the reversal reference number with the customer."},
		{"empathy", "Open every recovery message by naming the customer's actual loss, not the product area. Apologize once, specifically, then move to what happens next."},
		{"empathy", "Avoid conditional apologies (\"we're sorry if\"). State what went wrong in plain words before any troubleshooting step."},
		{"escalation", "On a repeated contact, summarize the history back to the customer first so they do not have to re-explain. Then give one concrete next action with a time commitment."},
		{"escalation", "Agents may refund duplicate charges on the spot. Goodwill compensation above the duplicated amount needs lead approval."},
	}
	out := make([]training.KnowledgeFragment, 0, len(frags))
	for i, f := range frags {
		out = append(out, training.KnowledgeFragment{
			ID: uuid.NewString(), CourseID: courseID, Tag: f.tag, Seq: i, Content: f.content,
		})
	}
	return out
}
