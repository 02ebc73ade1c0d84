package training

// StepKind discriminates the tagged union carried by Step. Exactly one of
// the kind-specific content pointers is set.
type StepKind string

const (
	StepQuiz     StepKind = "quiz"
	StepOpen     StepKind = "open"
	StepRoleplay StepKind = "roleplay"
)

// AttemptType positions an attempt inside its episode. Episodes run
// initial -> drill_1 -> drill_2 and never exceed MaxEpisodeAttempts.
type AttemptType string

const (
	AttemptInitial AttemptType = "initial"
	AttemptDrill1  AttemptType = "drill_1"
	AttemptDrill2  AttemptType = "drill_2"
)

const (
	// MaxEpisodeAttempts caps one (enrollment, step, pass) episode.
	MaxEpisodeAttempts = 3

	// PassThreshold splits completed from needs-repeat, and scales to the
	// 0-10 attempt score (>= 8 counts as a pass for roleplay evaluations).
	PassThreshold = 0.80

	// MaxAttemptScore is the per-attempt score ceiling.
	MaxAttemptScore = 10

	// RoleplayTurns is the fixed transcript length before evaluation.
	RoleplayTurns = 6
)

// PassResult classifies a finished course pass.
type PassResult string

const (
	ResultCompleted   PassResult = "completed"
	ResultNeedsRepeat PassResult = "needs_repeat"
)

type QuizContent struct {
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation,omitempty"`
}

type OpenContent struct {
	Prompt string `json:"prompt"`
}

// Scenario describes a roleplay step. The opening line is precomputed at
// authoring time and becomes turn 1 without a model call.
type Scenario struct {
	Situation   string `json:"situation"`
	LearnerRole string `json:"learner_role"`
	Goal        string `json:"goal"`
	Constraints string `json:"constraints,omitempty"`
	Persona     string `json:"persona"`
	OpeningLine string `json:"opening_line"`
	TotalTurns  int    `json:"total_turns"` // fixed at RoleplayTurns
}

type Step struct {
	ID       string       `json:"id"`
	CourseID string       `json:"course_id"`
	Index    int          `json:"index"` // dense, 0-based per course
	Kind     StepKind     `json:"kind"`
	Tag      string       `json:"tag"` // topic label for mastery aggregation
	Quiz     *QuizContent `json:"quiz,omitempty"`
	Open     *OpenContent `json:"open,omitempty"`
	Roleplay *Scenario    `json:"roleplay,omitempty"`
}

type Course struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CuratorID string `json:"curator_id"`
	Published bool   `json:"published"`
	Steps     []Step `json:"steps"`
	CreatedAt int64  `json:"created_at,omitempty"`
}

// StepByID finds a step by id.
func (c Course) StepByID(id string) (Step, bool) {
	for _, s := range c.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}

type CourseSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CuratorID string `json:"curator_id"`
	Published bool   `json:"published"`
	StepCount int    `json:"step_count"`
}

// Enrollment tracks one learner's passage through one course. A review
// restart bumps Pass and resets the in-flight counters; completion stats
// from earlier passes are never regressed.
type Enrollment struct {
	ID              string  `json:"id"`
	LearnerID       string  `json:"learner_id"`
	CourseID        string  `json:"course_id"`
	Pass            int     `json:"pass"`
	ProgressPct     int     `json:"progress_pct"`
	LastStepIndex   int     `json:"last_step_index"` // current position, 0-based
	IsCompleted     bool    `json:"is_completed"`
	CorrectAnswers  int     `json:"correct_answers"`
	TotalAnswers    int     `json:"total_answers"`
	ScorePoints     int     `json:"score_points"`
	LastSuccessRate float64 `json:"last_success_rate"`
	BestSuccessRate float64 `json:"best_success_rate"`
	CreatedAt       int64   `json:"created_at,omitempty"`
	UpdatedAt       int64   `json:"updated_at,omitempty"`
}

// Result classifies the most recent completed pass against PassThreshold.
func (e Enrollment) Result() PassResult {
	if e.LastSuccessRate >= PassThreshold {
		return ResultCompleted
	}
	return ResultNeedsRepeat
}

// DrillAttempt is one graded submission. Append-only; never mutated.
type DrillAttempt struct {
	ID              string      `json:"id"`
	EnrollmentID    string      `json:"enrollment_id"`
	StepID          string      `json:"step_id"`
	Pass            int         `json:"pass"`
	AttemptType     AttemptType `json:"attempt_type"`
	IsCorrect       bool        `json:"is_correct"`
	UserAnswer      string      `json:"user_answer"`
	Score           int         `json:"score"` // 0..MaxAttemptScore
	Tag             string      `json:"tag"`   // snapshot of the step's tag at write time
	GradingDegraded bool        `json:"grading_degraded,omitempty"`
	CreatedAt       int64       `json:"created_at,omitempty"`
}

// KnowledgeFragment is one pre-chunked unit of course material. Chunking is
// owned by the ingestion pipeline; the engine only selects and budgets.
type KnowledgeFragment struct {
	ID       string `json:"id"`
	CourseID string `json:"course_id"`
	Tag      string `json:"tag"`
	Seq      int    `json:"seq"` // original document order, the ranking tie-break
	Content  string `json:"content"`
}

// StepView is the learner-facing shape of a Step: quiz answer key and
// explanation are stripped the same way the store hides exam answer keys.
type StepView struct {
	ID       string        `json:"id"`
	Index    int           `json:"index"`
	Kind     StepKind      `json:"kind"`
	Tag      string        `json:"tag"`
	Quiz     *QuizView     `json:"quiz,omitempty"`
	Open     *OpenContent  `json:"open,omitempty"`
	Roleplay *ScenarioView `json:"roleplay,omitempty"`
}

type QuizView struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

// ScenarioView omits nothing sensitive but keeps the wire shape stable if
// curator-only fields are added later.
type ScenarioView struct {
	Situation   string `json:"situation"`
	LearnerRole string `json:"learner_role"`
	Goal        string `json:"goal"`
	Constraints string `json:"constraints,omitempty"`
	Persona     string `json:"persona"`
	OpeningLine string `json:"opening_line"`
	TotalTurns  int    `json:"total_turns"`
}

// View converts a Step to its learner-safe projection.
func (s Step) View() StepView {
	v := StepView{ID: s.ID, Index: s.Index, Kind: s.Kind, Tag: s.Tag}
	switch s.Kind {
	case StepQuiz:
		if s.Quiz != nil {
			v.Quiz = &QuizView{Prompt: s.Quiz.Prompt, Options: s.Quiz.Options}
		}
	case StepOpen:
		v.Open = s.Open
	case StepRoleplay:
		if s.Roleplay != nil {
			sc := ScenarioView(*s.Roleplay)
			v.Roleplay = &sc
		}
	}
	return v
}

// CompletionSummary is what CurrentStep returns once the pass is finished.
type CompletionSummary struct {
	Completed   bool       `json:"completed"`
	SuccessRate float64    `json:"success_rate"`
	Result      PassResult `json:"result"`
}
