package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type Config struct {
	Mode     Mode
	HTTPAddr string

	DBDriver string
	DBDSN    string

	AuthHMACSecret string
	AdminUser      string
	AdminPassHash  string // bcrypt

	CORSOriginsProd []string
	CORSOriginsDev  []string

	// Generative model upstream (wrapped by internal/ai).
	AIBaseURL    string
	AIModel      string
	AITimeout    time.Duration // hard per-call ceiling
	AIRetryMax   int           // transient upstream errors only, never timeouts
	AIRatePerSec float64
	AIAuditLog   string // JSON-lines audit file, lumberjack-rotated

	// Knowledge grounding.
	GroundMaxFragments int

	// Roleplay sessions are transient; unevaluated ones expire.
	RoleplaySessionTTL time.Duration

	// Mastery snapshot refresher.
	MasteryCronSpec  string
	MasteryMinSample int

	// Completion certificates.
	CertDir string
}

func FromEnv() Config {
	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeDev
	}
	return Config{
		Mode:     mode,
		HTTPAddr: envOr("HTTP_ADDR", ":8080"),

		DBDriver: envOr("DB_DRIVER", "sqlite"),
		DBDSN:    envOr("DB_DSN", ""),

		AuthHMACSecret: envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),
		AdminUser:      envOr("ADMIN_USER", "admin"),
		AdminPassHash:  envOr("ADMIN_PASS_HASH", "$2y$12$pyZAiWaTfVtM7UElIRStvOC3gNbnp70nmQU4eYopLGBfCJr1DOvji"),

		CORSOriginsProd: csvOr("CORS_ORIGINS_PROD", "https://app.skillpilot.io"),
		CORSOriginsDev:  csvOr("CORS_ORIGINS_DEV", "http://localhost:3000,http://localhost:5173"),

		AIBaseURL:    envOr("AI_BASE_URL", "http://localhost:11434/api/generate"),
		AIModel:      envOr("AI_MODEL", "mistral"),
		AITimeout:    time.Duration(envInt("AI_TIMEOUT_SEC", 90)) * time.Second,
		AIRetryMax:   envInt("AI_RETRY_MAX", 1),
		AIRatePerSec: envFloat("AI_RPS", 4),
		AIAuditLog:   envOr("AI_AUDIT_LOG", "./logs/ai_calls.jsonl"),

		GroundMaxFragments: envInt("GROUND_MAX_FRAGMENTS", 5),

		RoleplaySessionTTL: time.Duration(envInt("ROLEPLAY_SESSION_TTL_MIN", 45)) * time.Minute,

		MasteryCronSpec:  envOr("MASTERY_CRON", "*/15 * * * *"),
		MasteryMinSample: envInt("MASTERY_MIN_SAMPLE", 3),

		CertDir: envOr("CERT_DIR", "./data/certificates"),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
