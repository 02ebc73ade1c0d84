// Package auth provides offline-friendly authentication for the
// training gateway. Tokens are HS256 JWTs signed with a local secret;
// there is no external IdP dependency, which keeps single-binary and
// air-gapped deployments possible.
package auth

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/skillpilot/skillpilot-core/internal/rbac"
)

// AuthService issues and validates gateway tokens.
type AuthService struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewAuthService(secret []byte) *AuthService {
	return &AuthService{
		secret: secret,
		issuer: "skillpilot-gateway",
		ttl:    8 * time.Hour,
	}
}

// Claims carried by every gateway token. Role is authoritative: the
// gateway has no user directory, so whatever the login handler minted
// is what RBAC sees.
type Claims struct {
	Sub  string `json:"sub"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (a *AuthService) IssueJWT(sub, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		Sub:  sub,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(a.secret)
}

func (a *AuthService) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// JWTMiddleware validates the bearer token and attaches both the
// subject and the role to the request context.
func JWTMiddleware(a *AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			claims, err := a.Parse(strings.TrimPrefix(h, "Bearer "))
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := WithSubject(r.Context(), claims.Sub)
			ctx = rbac.WithRole(ctx, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// LoginHandler mints tokens. The admin account is checked against a
// bcrypt hash from configuration. In dev mode any username doubling as
// its own password logs in as a learner, and "curator" works the same
// way for authoring flows. Real deployments front this with SSO.
func LoginHandler(a *AuthService, adminUser, adminHash string, devMode bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		req.Username = strings.TrimSpace(req.Username)
		if req.Username == "" || req.Password == "" {
			http.Error(w, "missing credentials", http.StatusBadRequest)
			return
		}

		role := ""
		switch {
		case req.Username == adminUser && adminHash != "":
			if bcrypt.CompareHashAndPassword([]byte(adminHash), []byte(req.Password)) != nil {
				http.Error(w, "invalid credentials", http.StatusUnauthorized)
				return
			}
			role = rbac.RoleAdmin
		case devMode && req.Username == req.Password:
			role = rbac.RoleLearner
			if req.Username == "curator" {
				role = rbac.RoleCurator
			}
		default:
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}

		tok, err := a.IssueJWT(req.Username, role)
		if err != nil {
			http.Error(w, "token error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(loginResponse{Token: tok, Role: role})
	}
}
