package rbac_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/skillpilot/skillpilot-core/internal/rbac"
)

func TestChecker_Has(t *testing.T) {
	c := rbac.NewChecker()
	cases := []struct {
		role string
		perm string
		want bool
	}{
		{rbac.RoleLearner, "answer:submit", true},
		{rbac.RoleLearner, "course:browse", true},
		{rbac.RoleLearner, "course:publish", false},
		{rbac.RoleLearner, "knowledge:ingest", false},

		// Curators hold the whole course prefix through course:*.
		{rbac.RoleCurator, "course:create", true},
		{rbac.RoleCurator, "course:publish", true},
		{rbac.RoleCurator, "course:browse", true},
		{rbac.RoleCurator, "knowledge:ingest", true},
		{rbac.RoleCurator, "answer:submit", false},
		{rbac.RoleCurator, "mastery:view-own", false},

		// Admin wildcard covers everything, known or not.
		{rbac.RoleAdmin, "course:publish", true},
		{rbac.RoleAdmin, "made:up", true},

		{"intruder", "course:browse", false},
		{"", "course:browse", false},
	}
	for _, tc := range cases {
		if got := c.Has(tc.role, tc.perm); got != tc.want {
			t.Errorf("Has(%q, %q) = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
	}
}

func TestChecker_AnyAll(t *testing.T) {
	c := rbac.NewChecker()

	if !c.Any(rbac.RoleCurator, "answer:submit", "course:edit") {
		t.Fatalf("Any should pass when one permission matches")
	}
	if c.Any(rbac.RoleLearner, "course:publish", "knowledge:ingest") {
		t.Fatalf("Any should fail when none match")
	}
	if !c.All(rbac.RoleCurator, "course:create", "course:publish", "enrollment:list") {
		t.Fatalf("All should pass when every permission matches")
	}
	if c.All(rbac.RoleCurator, "course:create", "answer:submit") {
		t.Fatalf("All should fail when any permission is missing")
	}
}

func TestRequire_GatesByRoleOnContext(t *testing.T) {
	c := rbac.NewChecker()
	var hit bool
	h := rbac.Require(c, "course:publish")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
	}))

	// No role on the context at all.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/courses/c1/publish", nil))
	if rec.Code != http.StatusForbidden || hit {
		t.Fatalf("missing role: code = %d, hit = %v", rec.Code, hit)
	}

	// Role without the permission.
	req := httptest.NewRequest(http.MethodPost, "/courses/c1/publish", nil)
	req = req.WithContext(rbac.WithRole(req.Context(), rbac.RoleLearner))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden || hit {
		t.Fatalf("learner: code = %d, hit = %v", rec.Code, hit)
	}

	// Role with the permission.
	req = httptest.NewRequest(http.MethodPost, "/courses/c1/publish", nil)
	req = req.WithContext(rbac.WithRole(req.Context(), rbac.RoleCurator))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !hit {
		t.Fatalf("curator: code = %d, hit = %v", rec.Code, hit)
	}
}

func TestRequireAny_PassesOnFirstMatch(t *testing.T) {
	c := rbac.NewChecker()
	h := rbac.RequireAny(c, "mastery:view-own", "mastery:view-course")(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
	)

	for _, role := range []string{rbac.RoleLearner, rbac.RoleCurator, rbac.RoleAdmin} {
		req := httptest.NewRequest(http.MethodGet, "/mastery", nil)
		req = req.WithContext(rbac.WithRole(req.Context(), role))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("role %s: code = %d, want 200", role, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/mastery", nil)
	req = req.WithContext(rbac.WithRole(req.Context(), "guest"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("guest: code = %d, want 403", rec.Code)
	}
}
