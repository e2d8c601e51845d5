// Package authz centralizes every role and relationship based access
// decision. Handlers and services never compare role strings inline; they
// build Facts from the loaded resource and ask Authorize.
package authz

import (
	"fmt"
	"strings"
)

// Role is a level in the fixed role hierarchy. A higher role always
// satisfies a requirement expressed for a lower one.
type Role int

const (
	RoleViewer Role = iota + 1
	RoleEmployee
	RoleManager
	RoleAdmin
)

// ParseRole maps a stored role name to its hierarchy level.
func ParseRole(name string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "viewer":
		return RoleViewer, nil
	case "employee":
		return RoleEmployee, nil
	case "manager":
		return RoleManager, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return 0, fmt.Errorf("authz: unknown role %q", name)
	}
}

func (r Role) String() string {
	switch r {
	case RoleViewer:
		return "viewer"
	case RoleEmployee:
		return "employee"
	case RoleManager:
		return "manager"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// AtLeast reports whether the role satisfies the given minimum.
func (r Role) AtLeast(min Role) bool {
	return r >= min
}

// Action is an operation attempted on a resource.
type Action string

const (
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionAssign  Action = "assign"
	ActionApprove Action = "approve"
)

// Kind identifies the resource type an action targets.
type Kind string

const (
	KindTask         Kind = "task"
	KindKPI          Kind = "kpi"
	KindNotification Kind = "notification"
	KindFile         Kind = "file"
	KindMember       Kind = "member"
	KindDepartment   Kind = "department"
	KindRole         Kind = "role"
	KindConversation Kind = "conversation"
	KindReport       Kind = "report"
)

// Principal describes the authenticated actor. It is constructed per
// request from a verified token and never persisted.
type Principal struct {
	ID           string
	Role         Role
	TeamID       string
	DepartmentID string
}

// Facts are the ownership and relationship attributes of the target
// resource, extracted by the calling service from the loaded document.
type Facts struct {
	OwnerID      string
	AssigneeID   string
	TeamID       string
	DepartmentID string

	// TargetUserID is the account a membership mutation acts on.
	TargetUserID string
	// GrantedRole is the role a member update would assign.
	GrantedRole Role

	IsPublic bool
	IsSystem bool
}
