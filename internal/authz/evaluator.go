package authz

import (
	"fmt"

	"github.com/taskpulse/taskpulse/internal/platform/httpx"
)

// rule lists the grant paths for one (kind, action) pair. A request is
// allowed when any enabled path matches; everything else is a denial.
type rule struct {
	// minRole grants when the actor holds at least this role. Zero means
	// no pure-role path exists for the pair.
	minRole Role
	// ownership grants when the actor owns or is assigned the resource.
	ownership bool
	// team grants when the actor and resource share a team.
	team bool
	// department grants when the actor and resource share a department.
	department bool
	// public grants when the resource is flagged public.
	public bool
	// requireSameTeam adds a conjunct on top of the matched path: unless
	// the actor is an admin, the resource must be on the actor's team.
	requireSameTeam bool
}

// rules is the full allow table. Absence of an entry is a denial.
var rules = map[Kind]map[Action]rule{
	KindTask: {
		ActionCreate:  {minRole: RoleManager},
		ActionRead:    {minRole: RoleManager, ownership: true, team: true, public: true},
		ActionUpdate:  {minRole: RoleManager, ownership: true},
		ActionDelete:  {minRole: RoleManager, ownership: true},
		ActionAssign:  {minRole: RoleManager, requireSameTeam: true},
		ActionApprove: {minRole: RoleManager},
	},
	KindKPI: {
		ActionCreate:  {minRole: RoleManager},
		ActionRead:    {minRole: RoleManager, ownership: true, team: true},
		ActionUpdate:  {minRole: RoleManager, ownership: true},
		ActionDelete:  {minRole: RoleManager},
		ActionAssign:  {minRole: RoleManager, requireSameTeam: true},
		ActionApprove: {minRole: RoleManager},
	},
	KindNotification: {
		ActionCreate: {minRole: RoleAdmin, ownership: true},
		ActionRead:   {minRole: RoleAdmin, ownership: true},
		ActionUpdate: {ownership: true},
		ActionDelete: {minRole: RoleAdmin, ownership: true},
	},
	KindFile: {
		ActionCreate: {minRole: RoleEmployee},
		ActionRead:   {minRole: RoleManager, ownership: true, team: true, public: true},
		ActionUpdate: {minRole: RoleManager, ownership: true},
		ActionDelete: {minRole: RoleManager, ownership: true},
	},
	KindMember: {
		ActionCreate: {minRole: RoleManager},
		ActionRead:   {minRole: RoleManager, team: true},
		ActionUpdate: {minRole: RoleManager},
		ActionDelete: {minRole: RoleManager},
	},
	KindDepartment: {
		ActionCreate: {minRole: RoleAdmin},
		ActionRead:   {minRole: RoleManager, department: true},
		ActionUpdate: {minRole: RoleAdmin},
		ActionDelete: {minRole: RoleAdmin},
	},
	KindRole: {
		ActionCreate: {minRole: RoleAdmin},
		ActionRead:   {minRole: RoleManager},
		ActionUpdate: {minRole: RoleAdmin},
		ActionDelete: {minRole: RoleAdmin},
	},
	KindConversation: {
		ActionCreate: {minRole: RoleEmployee},
		ActionRead:   {minRole: RoleManager, ownership: true, team: true},
		ActionUpdate: {minRole: RoleManager, ownership: true},
		ActionDelete: {minRole: RoleManager, ownership: true},
	},
	KindReport: {
		ActionCreate: {minRole: RoleManager},
		ActionRead:   {minRole: RoleManager, team: true},
	},
}

// Authorize decides whether the principal may perform action on a resource
// of the given kind with the given facts. It is a pure function of its
// inputs and returns nil or an error wrapping httpx.ErrForbidden.
func Authorize(p Principal, action Action, kind Kind, facts Facts) error {
	actions, ok := rules[kind]
	if !ok {
		return deny(p, action, kind)
	}
	r, ok := actions[action]
	if !ok {
		return deny(p, action, kind)
	}

	// System resources are immutable regardless of role.
	if facts.IsSystem && (action == ActionUpdate || action == ActionDelete) {
		return deny(p, action, kind)
	}

	// Self-modification guards on the team-management surface.
	if kind == KindMember && facts.TargetUserID == p.ID {
		if action == ActionDelete {
			return deny(p, action, kind)
		}
		if action == ActionUpdate && facts.GrantedRole == RoleAdmin {
			return deny(p, action, kind)
		}
	}

	if !matches(p, r, facts) {
		return deny(p, action, kind)
	}

	if r.requireSameTeam && !p.Role.AtLeast(RoleAdmin) {
		if p.TeamID == "" || p.TeamID != facts.TeamID {
			return deny(p, action, kind)
		}
	}

	return nil
}

func matches(p Principal, r rule, facts Facts) bool {
	if r.minRole > 0 && p.Role.AtLeast(r.minRole) {
		return true
	}
	if r.ownership && owns(p, facts) {
		return true
	}
	if r.team && sameTeam(p, facts) {
		return true
	}
	if r.department && sameDepartment(p, facts) {
		return true
	}
	if r.public && facts.IsPublic {
		return true
	}
	return false
}

func owns(p Principal, facts Facts) bool {
	if p.ID == "" {
		return false
	}
	return p.ID == facts.OwnerID || p.ID == facts.AssigneeID
}

func sameTeam(p Principal, facts Facts) bool {
	return p.TeamID != "" && p.TeamID == facts.TeamID
}

func sameDepartment(p Principal, facts Facts) bool {
	return p.DepartmentID != "" && p.DepartmentID == facts.DepartmentID
}

func deny(p Principal, action Action, kind Kind) error {
	return fmt.Errorf("authz: %s may not %s %s: %w", p.Role, action, kind, httpx.ErrForbidden)
}
