package http

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	authmw "github.com/skillpilot/skillpilot-core/internal/auth/middleware"
	"github.com/skillpilot/skillpilot-core/internal/rbac"
	"github.com/skillpilot/skillpilot-core/internal/training"
)

// Request DTO validation. Hand checks stay for one-field bodies; anything
// with more structure goes through the validator.
var validate = validator.New()

func caller(r *http.Request) (sub, role string) {
	sub, _ = authmw.SubjectFromContext(r.Context())
	role, _ = rbac.RoleFromContext(r.Context())
	return sub, role
}

// ownsEnrollment gates learner-scoped routes: the enrollment's learner or
// an admin. Curators do not read individual learner enrollments directly;
// they get the course roster.
func ownsEnrollment(r *http.Request, enr training.Enrollment) bool {
	sub, role := caller(r)
	return sub == enr.LearnerID || role == rbac.RoleAdmin
}

func ownsCourse(r *http.Request, curatorID string) bool {
	sub, role := caller(r)
	return sub == curatorID || role == rbac.RoleAdmin
}
