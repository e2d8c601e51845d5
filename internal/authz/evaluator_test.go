package authz

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskpulse/taskpulse/internal/platform/httpx"
)

func TestParseRole(t *testing.T) {
	for name, want := range map[string]Role{
		"viewer":   RoleViewer,
		"employee": RoleEmployee,
		"manager":  RoleManager,
		"admin":    RoleAdmin,
		"  Admin ": RoleAdmin,
	} {
		got, err := ParseRole(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseRole("superuser")
	require.Error(t, err)
}

func TestRoleHierarchy(t *testing.T) {
	assert.True(t, RoleAdmin.AtLeast(RoleManager))
	assert.True(t, RoleManager.AtLeast(RoleEmployee))
	assert.True(t, RoleEmployee.AtLeast(RoleViewer))
	assert.False(t, RoleViewer.AtLeast(RoleEmployee))
	assert.False(t, RoleEmployee.AtLeast(RoleManager))
}

// TestTaskDeleteMatrix exhaustively checks the delete rule: allowed iff the
// actor is at least a manager or owns the task.
func TestTaskDeleteMatrix(t *testing.T) {
	roles := []Role{RoleViewer, RoleEmployee, RoleManager, RoleAdmin}
	relationships := []struct {
		name  string
		facts Facts
		owner bool
	}{
		{"owner", Facts{OwnerID: "U1"}, true},
		{"assignee", Facts{AssigneeID: "U1"}, true},
		{"same team only", Facts{OwnerID: "U2", TeamID: "T1"}, false},
		{"unrelated", Facts{OwnerID: "U2", TeamID: "T2"}, false},
	}

	for _, role := range roles {
		for _, rel := range relationships {
			t.Run(fmt.Sprintf("%s/%s", role, rel.name), func(t *testing.T) {
				p := Principal{ID: "U1", Role: role, TeamID: "T1"}
				err := Authorize(p, ActionDelete, KindTask, rel.facts)
				if role.AtLeast(RoleManager) || rel.owner {
					assert.NoError(t, err)
				} else {
					require.Error(t, err)
					assert.True(t, errors.Is(err, httpx.ErrForbidden))
				}
			})
		}
	}
}

// TestTaskReadMatrix covers the composite read rule: role, ownership, team
// membership, or a public flag each grant independently.
func TestTaskReadMatrix(t *testing.T) {
	cases := []struct {
		name    string
		p       Principal
		facts   Facts
		allowed bool
	}{
		{"manager unrelated", Principal{ID: "U1", Role: RoleManager}, Facts{OwnerID: "U2"}, true},
		{"admin unrelated", Principal{ID: "U1", Role: RoleAdmin}, Facts{OwnerID: "U2"}, true},
		{"employee owner", Principal{ID: "U1", Role: RoleEmployee}, Facts{OwnerID: "U1"}, true},
		{"employee assignee", Principal{ID: "U1", Role: RoleEmployee}, Facts{AssigneeID: "U1"}, true},
		{"viewer same team", Principal{ID: "U1", Role: RoleViewer, TeamID: "T1"}, Facts{OwnerID: "U2", TeamID: "T1"}, true},
		{"viewer public", Principal{ID: "U1", Role: RoleViewer}, Facts{OwnerID: "U2", IsPublic: true}, true},
		{"viewer unrelated", Principal{ID: "U1", Role: RoleViewer, TeamID: "T1"}, Facts{OwnerID: "U2", TeamID: "T2"}, false},
		{"employee other team", Principal{ID: "U1", Role: RoleEmployee, TeamID: "T1"}, Facts{OwnerID: "U2", TeamID: "T2"}, false},
		{"empty team never matches empty", Principal{ID: "U1", Role: RoleViewer}, Facts{OwnerID: "U2"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Authorize(tc.p, ActionRead, KindTask, tc.facts)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, httpx.ErrForbidden)
			}
		})
	}
}

func TestAssignRequiresSameTeamUnlessAdmin(t *testing.T) {
	manager := Principal{ID: "U1", Role: RoleManager, TeamID: "T1"}
	admin := Principal{ID: "U2", Role: RoleAdmin, TeamID: "T1"}
	employee := Principal{ID: "U3", Role: RoleEmployee, TeamID: "T1"}

	sameTeam := Facts{TeamID: "T1"}
	otherTeam := Facts{TeamID: "T2"}

	assert.NoError(t, Authorize(manager, ActionAssign, KindTask, sameTeam))
	assert.ErrorIs(t, Authorize(manager, ActionAssign, KindTask, otherTeam), httpx.ErrForbidden)
	assert.NoError(t, Authorize(admin, ActionAssign, KindTask, otherTeam))
	assert.ErrorIs(t, Authorize(employee, ActionAssign, KindTask, sameTeam), httpx.ErrForbidden)
}

// Scenario from the cross-team access rules: an employee on team T1 may not
// delete a task owned by another user on team T2.
func TestEmployeeCannotDeleteForeignTask(t *testing.T) {
	p := Principal{ID: "U1", Role: RoleEmployee, TeamID: "T1"}
	err := Authorize(p, ActionDelete, KindTask, Facts{OwnerID: "U2", TeamID: "T2"})
	assert.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestSystemResourceGuard(t *testing.T) {
	admin := Principal{ID: "U1", Role: RoleAdmin}

	assert.ErrorIs(t, Authorize(admin, ActionUpdate, KindRole, Facts{IsSystem: true}), httpx.ErrForbidden)
	assert.ErrorIs(t, Authorize(admin, ActionDelete, KindRole, Facts{IsSystem: true}), httpx.ErrForbidden)
	assert.NoError(t, Authorize(admin, ActionRead, KindRole, Facts{IsSystem: true}))
	assert.NoError(t, Authorize(admin, ActionUpdate, KindRole, Facts{}))
}

func TestSelfModificationGuards(t *testing.T) {
	admin := Principal{ID: "U1", Role: RoleAdmin, TeamID: "T1"}

	// No self-elevation to admin.
	err := Authorize(admin, ActionUpdate, KindMember, Facts{TargetUserID: "U1", GrantedRole: RoleAdmin})
	assert.ErrorIs(t, err, httpx.ErrForbidden)

	// Other role grants on self are fine.
	assert.NoError(t, Authorize(admin, ActionUpdate, KindMember, Facts{TargetUserID: "U1", GrantedRole: RoleManager}))

	// No self-removal through the team surface, even for admins.
	assert.ErrorIs(t, Authorize(admin, ActionDelete, KindMember, Facts{TargetUserID: "U1"}), httpx.ErrForbidden)
	assert.NoError(t, Authorize(admin, ActionDelete, KindMember, Facts{TargetUserID: "U2"}))
}

func TestNotificationRulesAreOwnerScoped(t *testing.T) {
	owner := Principal{ID: "U1", Role: RoleViewer}
	stranger := Principal{ID: "U2", Role: RoleManager, TeamID: "T1"}
	admin := Principal{ID: "U3", Role: RoleAdmin}

	facts := Facts{OwnerID: "U1"}

	assert.NoError(t, Authorize(owner, ActionUpdate, KindNotification, facts))
	assert.NoError(t, Authorize(owner, ActionRead, KindNotification, facts))
	// Managers have no blanket access to other people's notifications.
	assert.ErrorIs(t, Authorize(stranger, ActionUpdate, KindNotification, facts), httpx.ErrForbidden)
	assert.ErrorIs(t, Authorize(stranger, ActionRead, KindNotification, facts), httpx.ErrForbidden)
	assert.NoError(t, Authorize(admin, ActionRead, KindNotification, facts))
	// Even admins cannot mark someone else's notification read.
	assert.ErrorIs(t, Authorize(admin, ActionUpdate, KindNotification, facts), httpx.ErrForbidden)
}

func TestDepartmentRead(t *testing.T) {
	member := Principal{ID: "U1", Role: RoleViewer, DepartmentID: "D1"}
	outsider := Principal{ID: "U2", Role: RoleEmployee, DepartmentID: "D2"}

	assert.NoError(t, Authorize(member, ActionRead, KindDepartment, Facts{DepartmentID: "D1"}))
	assert.ErrorIs(t, Authorize(outsider, ActionRead, KindDepartment, Facts{DepartmentID: "D1"}), httpx.ErrForbidden)
	assert.NoError(t, Authorize(Principal{ID: "U3", Role: RoleManager}, ActionRead, KindDepartment, Facts{DepartmentID: "D1"}))
}

func TestDenyByDefault(t *testing.T) {
	admin := Principal{ID: "U1", Role: RoleAdmin}

	// Unknown kind.
	assert.ErrorIs(t, Authorize(admin, ActionRead, Kind("widget"), Facts{}), httpx.ErrForbidden)
	// Known kind, unlisted action.
	assert.ErrorIs(t, Authorize(admin, ActionApprove, KindNotification, Facts{OwnerID: "U1"}), httpx.ErrForbidden)
	assert.ErrorIs(t, Authorize(admin, ActionAssign, KindReport, Facts{}), httpx.ErrForbidden)
}

func TestAuthorizeIsPure(t *testing.T) {
	p := Principal{ID: "U1", Role: RoleEmployee, TeamID: "T1"}
	facts := Facts{OwnerID: "U1"}
	first := Authorize(p, ActionUpdate, KindTask, facts)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Authorize(p, ActionUpdate, KindTask, facts))
	}
}
