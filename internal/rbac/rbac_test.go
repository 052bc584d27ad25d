package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "client proposes", role: RoleClient, action: ActionProposeSync, allow: true},
		{name: "client posts brief", role: RoleClient, action: ActionPostBrief, allow: true},
		{name: "client submits track", role: RoleClient, action: ActionSubmitTrack, allow: false},
		{name: "producer submits track", role: RoleProducer, action: ActionSubmitTrack, allow: true},
		{name: "producer proposes", role: RoleProducer, action: ActionProposeSync, allow: false},
		{name: "rights holder negotiates", role: RoleRightsHolder, action: ActionNegotiate, allow: true},
		{name: "producer manages catalog", role: RoleProducer, action: ActionManageCatalog, allow: false},
		{name: "admin manages discounts", role: RoleAdmin, action: ActionManageDiscounts, allow: true},
		{name: "unknown role", role: Role("guest"), action: ActionNegotiate, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("rights_holder"); got != RoleRightsHolder {
		t.Fatalf("expected rights_holder, got %s", got)
	}
	if got := Normalize("superuser"); got != RoleClient {
		t.Fatalf("expected fallback to client, got %s", got)
	}
	if !RoleRightsHolder.OwnsTracks() || RoleClient.OwnsTracks() {
		t.Fatal("unexpected OwnsTracks result")
	}
}
