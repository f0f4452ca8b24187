package auth

import (
	"testing"
)

func TestHasAtLeast(t *testing.T) {
	if !HasAtLeast([]string{"viewer"}, RoleViewer) {
		t.Fatalf("viewer should satisfy viewer")
	}
	if HasAtLeast([]string{"viewer"}, RoleEditor) {
		t.Fatalf("viewer should not satisfy editor")
	}
	if !HasAtLeast([]string{"Admin "}, RoleEditor) {
		t.Fatalf("admin should satisfy editor")
	}
	if HasAtLeast([]string{"qa"}, RoleViewer) {
		t.Fatalf("custom role carries no level")
	}
}

func TestEffectiveRoles(t *testing.T) {
	got := EffectiveRoles([]string{"viewer", "QA"}, []string{"editor", "qa", " "})
	if len(got) != 3 || got[0] != "viewer" || got[1] != "qa" || got[2] != "editor" {
		t.Fatalf("EffectiveRoles()=%v", got)
	}
	if !HasAtLeast(got, RoleEditor) {
		t.Fatalf("board editor grant should lift a global viewer")
	}
	if !Intersects(got, []string{"QA"}) || Intersects(got, []string{"release-manager"}) {
		t.Fatalf("Intersects() mismatch for %v", got)
	}
}
