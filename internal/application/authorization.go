package application

import "fmt"

// Operation names an event operation subject to authorization.
type Operation string

const (
	OpCreateEvent Operation = "create_event"
	OpListEvents  Operation = "list_events"
	OpGetEvent    Operation = "get_event"
	OpUpdateEvent Operation = "update_event"
	OpDeleteEvent Operation = "delete_event"
	OpStartEvent  Operation = "start_event"
	OpAddAttender Operation = "add_attender"
	OpGetMyGift   Operation = "get_my_gift"
)

// Role is the relationship a caller needs with an event.
type Role int

const (
	// RoleAnyUser admits every identified caller.
	RoleAnyUser Role = iota
	// RoleAttender admits attenders, which includes the moderator.
	RoleAttender
	// RoleModerator admits only the event moderator.
	RoleModerator
)

func (r Role) String() string {
	switch r {
	case RoleAnyUser:
		return "any_user"
	case RoleAttender:
		return "attender"
	case RoleModerator:
		return "moderator"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

var operationRoles = map[Operation]Role{
	OpCreateEvent: RoleAnyUser,
	OpListEvents:  RoleAnyUser,
	OpGetEvent:    RoleAttender,
	OpUpdateEvent: RoleModerator,
	OpDeleteEvent: RoleModerator,
	OpStartEvent:  RoleModerator,
	OpAddAttender: RoleModerator,
	OpGetMyGift:   RoleAttender,
}

// RequiredRole returns the role an operation demands.
func RequiredRole(op Operation) (Role, bool) {
	role, ok := operationRoles[op]
	return role, ok
}

// authorize checks the caller against the role table. Operations that are not
// listed are denied.
func authorize(op Operation, event Event, principal Principal) error {
	if principal.UserID == "" {
		return ErrUnauthenticated
	}

	role, ok := operationRoles[op]
	if !ok {
		return fmt.Errorf("%w: unknown operation %q", ErrPermissionDenied, op)
	}

	switch role {
	case RoleAnyUser:
		return nil
	case RoleAttender:
		if event.IsAttender(principal.UserID) || event.IsModerator(principal.UserID) {
			return nil
		}
	case RoleModerator:
		if event.IsModerator(principal.UserID) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s requires %s", ErrPermissionDenied, op, role)
}
