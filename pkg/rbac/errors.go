package rbac

import "errors"

var (
	// ErrInvalidArgument is returned for empty or malformed identifiers and inputs.
	ErrInvalidArgument = errors.New("rbac.invalid_argument")

	// ErrDuplicateName is returned when a permission or role name is already taken.
	ErrDuplicateName = errors.New("rbac.duplicate_name")

	// ErrCycle is returned when an inheritance edge would make a role inherit from itself.
	ErrCycle = errors.New("rbac.inheritance_cycle")

	// ErrNotFound is returned when a referenced role or permission does not exist.
	ErrNotFound = errors.New("rbac.not_found")

	// ErrSystemRole is returned when deleting a role flagged as a system role.
	ErrSystemRole = errors.New("rbac.system_role")

	// ErrRoleInUse is returned when deleting a role that is still assigned to users.
	ErrRoleInUse = errors.New("rbac.role_in_use")
)
