package rbac

// RolePermissions is the default policy.
var RolePermissions = map[string][]string{
	"student": {
		"quiz:view",
		"attempt:create",
		"attempt:save",
		"attempt:submit",
		"attempt:view-own",
	},
	"teacher": {
		"quiz:create",
		"quiz:view",
		"quiz:view-keys",
		"attempt:view-all",
		"attempt:grade",
	},
	"admin": {
		"*", // everything
	},
}
