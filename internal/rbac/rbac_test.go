package rbac_test

import (
	"errors"
	"testing"

	"ijro/internal/config"
	"ijro/internal/domain"
	"ijro/internal/rbac"
)

func newAuthority(t *testing.T) rbac.Authority {
	t.Helper()
	cfg := config.Default("dist-1")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	return rbac.New(cfg)
}

func TestCanCreateUserMatrix(t *testing.T) {
	auth := newAuthority(t)
	cases := []struct {
		creator domain.Role
		target  domain.Role
		want    bool
	}{
		{domain.RoleAdmin, domain.RoleAdmin, true},
		{domain.RoleAdmin, domain.RoleDistrictHead, true},
		{domain.RoleDistrictHead, domain.RoleDistrictOfficer, true},
		{domain.RoleDistrictHead, domain.RoleDistrictHead, false},
		{domain.RoleDistrictHead, domain.RoleAdmin, false},
		{domain.RoleDistrictOfficer, domain.RoleOrgHead, true},
		{domain.RoleDistrictOfficer, domain.RoleDistrictOfficer, false},
		{domain.RoleOrgHead, domain.RoleOrgOfficer, true},
		{domain.RoleOrgHead, domain.RoleOrgHead, false},
		{domain.RoleOrgOfficer, domain.RoleOrgOfficer, false},
	}
	for _, c := range cases {
		if got := auth.CanCreateUser(c.creator, c.target); got != c.want {
			t.Errorf("CanCreateUser(%s, %s) = %v, want %v", c.creator, c.target, got, c.want)
		}
	}
}

func TestTaskActionMatrix(t *testing.T) {
	auth := newAuthority(t)
	cases := []struct {
		role   domain.Role
		action domain.TaskAction
		want   bool
	}{
		{domain.RoleAdmin, domain.ActionClose, true},
		{domain.RoleDistrictHead, domain.ActionCreate, true},
		{domain.RoleDistrictHead, domain.ActionClose, true},
		{domain.RoleDistrictHead, domain.ActionAccept, false},
		{domain.RoleDistrictOfficer, domain.ActionCreate, true},
		{domain.RoleDistrictOfficer, domain.ActionClose, false},
		{domain.RoleOrgHead, domain.ActionAccept, true},
		{domain.RoleOrgHead, domain.ActionSubmitReport, true},
		{domain.RoleOrgHead, domain.ActionCreate, false},
		{domain.RoleOrgOfficer, domain.ActionSubmitReport, true},
		{domain.RoleOrgOfficer, domain.ActionReassign, false},
	}
	for _, c := range cases {
		if got := auth.CanPerformTaskAction(c.role, c.action); got != c.want {
			t.Errorf("CanPerformTaskAction(%s, %s) = %v, want %v", c.role, c.action, got, c.want)
		}
	}
}

func TestFailClosed(t *testing.T) {
	auth := newAuthority(t)
	if auth.CanCreateUser("superuser", domain.RoleOrgOfficer) {
		t.Errorf("unknown creator role allowed")
	}
	if auth.CanPerformTaskAction("superuser", domain.ActionCreate) {
		t.Errorf("unknown role allowed task action")
	}
	if auth.CanPerformTaskAction(domain.RoleAdmin, "delete") {
		t.Errorf("unknown action allowed")
	}
	if auth.HasPermission(domain.RoleOrgOfficer, "view_analytics") {
		t.Errorf("org_officer should hold no permissions")
	}
	if auth.HasPermission(domain.RoleAdmin) {
		t.Errorf("empty requirement should be denied")
	}

	empty := rbac.New(nil)
	if empty.CanCreateUser(domain.RoleAdmin, domain.RoleOrgOfficer) {
		t.Errorf("nil config allowed creation")
	}
	if empty.RequireTaskAction(domain.RoleAdmin, domain.ActionCreate) == nil {
		t.Errorf("nil config allowed task action")
	}
}

func TestAdminWildcard(t *testing.T) {
	auth := newAuthority(t)
	for _, perm := range []string{"manage_users", "manage_orgs", "manage_settings", "view_audit", "view_analytics"} {
		if !auth.HasPermission(domain.RoleAdmin, perm) {
			t.Errorf("admin lacks %s", perm)
		}
	}
	if !auth.HasPermission(domain.RoleDistrictHead, "manage_settings") {
		t.Errorf("district_head lacks manage_settings")
	}
	if auth.HasPermission(domain.RoleDistrictOfficer, "manage_settings") {
		t.Errorf("district_officer holds manage_settings")
	}
}

func TestRequireTaskAction(t *testing.T) {
	auth := newAuthority(t)
	if err := auth.RequireTaskAction(domain.RoleDistrictHead, domain.ActionCreate); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := auth.RequireTaskAction(domain.RoleOrgOfficer, domain.ActionClose)
	var fe rbac.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
	if fe.Reason == "" {
		t.Fatalf("expected a reason")
	}
}
