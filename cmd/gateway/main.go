package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/skillpilot/skillpilot-core/internal/ai"
	api "github.com/skillpilot/skillpilot-core/internal/api/http"
	"github.com/skillpilot/skillpilot-core/internal/audit"
	auth "github.com/skillpilot/skillpilot-core/internal/auth/middleware"
	"github.com/skillpilot/skillpilot-core/internal/cert"
	"github.com/skillpilot/skillpilot-core/internal/config"
	"github.com/skillpilot/skillpilot-core/internal/db"
	"github.com/skillpilot/skillpilot-core/internal/eventlog"
	"github.com/skillpilot/skillpilot-core/internal/grading"
	"github.com/skillpilot/skillpilot-core/internal/knowledge"
	"github.com/skillpilot/skillpilot-core/internal/mastery"
	"github.com/skillpilot/skillpilot-core/internal/rbac"
	"github.com/skillpilot/skillpilot-core/internal/roleplay"
	"github.com/skillpilot/skillpilot-core/internal/storage"
	"github.com/skillpilot/skillpilot-core/internal/training"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using process env")
	}
	printStartupBanner()

	cfg := config.FromEnv()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// --- Store (in-memory for throwaway dev runs, SQL otherwise) ---
	var (
		store  training.Store
		events eventlog.Log
		ready  func(context.Context) error
	)
	if cfg.DBDriver == "memory" {
		store = training.NewMemoryStore()
		events = eventlog.NewMemory()
	} else {
		dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
		if err != nil {
			log.Fatalf("db open failed: %v", err)
		}
		store = training.NewSQLStore(dbh)
		events = eventlog.NewRepo(dbh)
		ready = dbh.PingContext
	}

	// --- AI gateway (audited, rate-limited; callers degrade on failure) ---
	auditLog := audit.NewFileLogger(cfg.AIAuditLog)
	gen := ai.New(cfg.AIBaseURL, cfg.AIModel,
		ai.WithTimeout(cfg.AITimeout),
		ai.WithRetryMax(cfg.AIRetryMax),
		ai.WithRatePerSec(cfg.AIRatePerSec),
		ai.WithAuditLogger(auditLog),
	)

	// --- Knowledge grounding over the course fragment corpus ---
	grounder := knowledge.NewGrounder(knowledge.SourceFunc(
		func(ctx context.Context, courseID string) ([]knowledge.Fragment, error) {
			frags, err := store.ListFragments(ctx, courseID)
			if err != nil {
				return nil, err
			}
			out := make([]knowledge.Fragment, 0, len(frags))
			for _, f := range frags {
				out = append(out, knowledge.Fragment{ID: f.ID, Tag: f.Tag, Seq: f.Seq, Content: f.Content})
			}
			return out, nil
		}), cfg.GroundMaxFragments)

	// --- Engines ---
	engine := grading.NewEngine(grading.WithOpenGrading(gen, grounder))
	tracker := training.NewTracker(store, engine, events)
	seq := training.NewSequencer(store, events)
	orc := roleplay.New(store, tracker,
		roleplay.WithGenerator(gen, grounder),
		roleplay.WithEvents(events),
		roleplay.WithTTL(cfg.RoleplaySessionTTL),
	)
	agg := mastery.NewAggregator(store, cfg.MasteryMinSample)

	blobs, err := storage.NewFSStore(cfg.CertDir)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}
	certs := cert.NewGenerator(blobs)

	// --- Background jobs ---
	jobs := cron.New()
	sched := mastery.NewScheduler(agg, store)
	if err := sched.Register(jobs, cfg.MasteryCronSpec); err != nil {
		log.Fatalf("cron: %v", err)
	}
	if _, err := jobs.AddFunc("*/5 * * * *", func() {
		if n := orc.Sweep(); n > 0 {
			log.Printf("roleplay: swept %d expired session(s)", n)
		}
	}); err != nil {
		log.Fatalf("cron: %v", err)
	}
	jobs.Start()

	// --- Auth (local JWT for offline/dev) ---
	authSvc := auth.NewAuthService([]byte(cfg.AuthHMACSecret))
	checker := rbac.NewChecker()

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	// Roleplay turns wait on the model; the ceiling has to sit above the
	// per-call AI timeout or chi kills the request first.
	r.Use(middleware.Timeout(cfg.AITimeout + 30*time.Second))

	origins := cfg.CORSOriginsDev
	if cfg.Mode == config.ModeProd {
		origins = cfg.CORSOriginsProd
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, cfg.AdminUser, cfg.AdminPassHash, cfg.Mode == config.ModeDev))
	r.Get("/healthz", api.HealthzHandler())
	r.Get("/readyz", api.ReadyzHandler(ready))

	// Protected API (JWT → subject/role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		// Learner flow
		pr.With(rbac.Require(checker, "step:view")).
			Get("/enrollments/{enrollmentID}/step", api.GetStepHandler(seq, store))
		pr.With(rbac.Require(checker, "answer:submit")).
			Post("/enrollments/{enrollmentID}/answers", api.SubmitAnswerHandler(tracker, store))
		pr.With(rbac.Require(checker, "advance:perform")).
			Post("/enrollments/{enrollmentID}/advance", api.AdvanceHandler(seq, store))
		pr.With(rbac.Require(checker, "advance:perform")).
			Post("/enrollments/{enrollmentID}/restart", api.RestartHandler(seq, store))
		pr.With(rbac.Require(checker, "certificate:view")).
			Get("/enrollments/{enrollmentID}/certificate", api.CertificateHandler(certs, store))

		// Roleplay
		pr.With(rbac.Require(checker, "roleplay:play")).
			Post("/roleplay/sessions", api.StartSessionHandler(orc))
		pr.With(rbac.Require(checker, "roleplay:play")).
			Post("/roleplay/sessions/{sessionID}/turns", api.TurnHandler(orc))

		// Mastery
		pr.With(rbac.Require(checker, "mastery:view-own")).
			Get("/mastery/learners/{learnerID}", api.LearnerMasteryHandler(agg))
		pr.With(rbac.Require(checker, "mastery:view-course")).
			Get("/mastery/courses/{courseID}", api.CourseMasteryHandler(agg, store))

		// Courses
		pr.With(rbac.Require(checker, "course:browse")).
			Get("/courses", api.ListCoursesHandler(store))
		pr.With(rbac.Require(checker, "course:browse")).
			Get("/courses/{courseID}", api.GetCourseHandler(store))
		pr.With(rbac.Require(checker, "course:create")).
			Post("/courses", api.CreateCourseHandler(store))
		pr.With(rbac.Require(checker, "course:edit")).
			Put("/courses/{courseID}/steps", api.ReplaceStepsHandler(store))
		pr.With(rbac.Require(checker, "course:publish")).
			Post("/courses/{courseID}/publish", api.PublishCourseHandler(store))
		pr.With(rbac.Require(checker, "knowledge:ingest")).
			Post("/courses/{courseID}/knowledge", api.PushKnowledgeHandler(store))
		pr.With(rbac.Require(checker, "enrollment:join")).
			Post("/courses/{courseID}/enrollments", api.JoinCourseHandler(seq))
		pr.With(rbac.Require(checker, "enrollment:list")).
			Get("/courses/{courseID}/enrollments", api.CourseRosterHandler(store))
	})

	log.Printf("listening on %s (mode=%s, db=%s, model=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver, cfg.AIModel)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}

func printStartupBanner() {
	figure.NewFigure("SkillPilot", "", true).Print()
	fmt.Println("======================================================")
	fmt.Println("SkillPilot training gateway")
}
