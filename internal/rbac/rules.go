package rbac

// Roles known to the gateway. There is no user directory; the role in
// the token is the role.
const (
	RoleLearner = "learner"
	RoleCurator = "curator"
	RoleAdmin   = "admin"
)

// RolePermissions maps a role to the permissions it holds. A trailing
// "*" grants every permission under the prefix.
var RolePermissions = map[string][]string{
	RoleLearner: {
		"course:browse",
		"enrollment:join",
		"step:view",
		"answer:submit",
		"advance:perform",
		"roleplay:play",
		"mastery:view-own",
		"certificate:view",
	},
	RoleCurator: {
		"course:*",
		"knowledge:ingest",
		"enrollment:list",
		"mastery:view-course",
	},
	RoleAdmin: {"*"},
}
