package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"permission_service/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
)

func seedGrant(f *fixture, g *models.PermissionGrant) *models.PermissionGrant {
	if g.ID.IsZero() {
		g.ID = bson.NewObjectID()
	}
	g.IsActive = true
	f.grants.grants = append(f.grants.grants, g)
	return g
}

func TestCheckPermissionAdminBypass(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if !f.permissions.CheckPermission(ctx, f.adminID, models.ResourceExperiment, models.ActionDelete, f.resourceID) {
		t.Error("admin should pass every permission check")
	}
}

func TestCheckPermissionGrantSources(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tests := []struct {
		name       string
		targetType models.PermissionTargetType
		targetID   string
		userID     bson.ObjectID
		want       bool
	}{
		{"direct user grant", models.TargetUser, "", f.studentID, true},
		{"role grant", models.TargetRole, "teacher", f.teacherID, true},
		{"role grant wrong role", models.TargetRole, "teacher", f.studentID, false},
		{"team grant for member", models.TargetTeam, "", f.studentID, true},
		{"org grant for member", models.TargetOrganization, "", f.teacherID, true},
		{"org grant for non-member", models.TargetOrganization, "", f.studentID, false},
		{"public grant", models.TargetPublic, "", f.studentID, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.grants.grants = nil
			targetID := tt.targetID
			switch tt.targetType {
			case models.TargetUser:
				targetID = tt.userID.Hex()
			case models.TargetTeam:
				targetID = f.teamID.Hex()
			case models.TargetOrganization:
				targetID = f.orgID.Hex()
			}
			seedGrant(f, &models.PermissionGrant{
				ResourceType: models.ResourceExperiment,
				ResourceID:   f.resourceID,
				Action:       models.ActionRead,
				TargetType:   tt.targetType,
				TargetID:     targetID,
			})

			got := f.permissions.CheckPermission(ctx, tt.userID, models.ResourceExperiment, models.ActionRead, f.resourceID)
			if got != tt.want {
				t.Errorf("CheckPermission() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckPermissionTypeLevelGrant(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// A grant without a resource id covers the whole type, concrete
	// resources included.
	seedGrant(f, &models.PermissionGrant{
		ResourceType: models.ResourceExperiment,
		Action:       models.ActionCreate,
		TargetType:   models.TargetRole,
		TargetID:     "teacher",
	})

	if !f.permissions.CheckPermission(ctx, f.teacherID, models.ResourceExperiment, models.ActionCreate, bson.ObjectID{}) {
		t.Error("type-level check should match the type-level grant")
	}
	if !f.permissions.CheckPermission(ctx, f.teacherID, models.ResourceExperiment, models.ActionCreate, f.resourceID) {
		t.Error("type-level grant should also cover a concrete resource")
	}
	if f.permissions.CheckPermission(ctx, f.studentID, models.ResourceExperiment, models.ActionCreate, bson.ObjectID{}) {
		t.Error("students hold no create grant")
	}
}

func TestCheckPermissionExpiredAndInactive(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	expired := seedGrant(f, &models.PermissionGrant{
		ResourceType: models.ResourceExperiment,
		ResourceID:   f.resourceID,
		Action:       models.ActionRead,
		TargetType:   models.TargetPublic,
	})
	expired.ExpiresAt = time.Now().Unix() - 60

	if f.permissions.CheckPermission(ctx, f.studentID, models.ResourceExperiment, models.ActionRead, f.resourceID) {
		t.Error("expired grant should not convey access")
	}

	expired.ExpiresAt = 0
	expired.IsActive = false
	if f.permissions.CheckPermission(ctx, f.studentID, models.ResourceExperiment, models.ActionRead, f.resourceID) {
		t.Error("deactivated grant should not convey access")
	}
}

func TestCheckPermissionFailsClosed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	seedGrant(f, &models.PermissionGrant{
		ResourceType: models.ResourceExperiment,
		ResourceID:   f.resourceID,
		Action:       models.ActionRead,
		TargetType:   models.TargetPublic,
	})

	f.grants.err = errors.New("connection reset")
	if f.permissions.CheckPermission(ctx, f.studentID, models.ResourceExperiment, models.ActionRead, f.resourceID) {
		t.Error("grant store failure must read as denied")
	}
	f.grants.err = nil

	f.users.err = errors.New("directory down")
	if f.permissions.CheckPermission(ctx, f.studentID, models.ResourceExperiment, models.ActionRead, f.resourceID) {
		t.Error("principal resolution failure must read as denied")
	}
}

func TestGetUserPermissions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	seedGrant(f, &models.PermissionGrant{
		ResourceType: models.ResourceExperiment,
		ResourceID:   f.resourceID,
		Action:       models.ActionRead,
		TargetType:   models.TargetPublic,
	})
	seedGrant(f, &models.PermissionGrant{
		ResourceType: models.ResourceExperiment,
		ResourceID:   f.resourceID,
		Action:       models.ActionRead,
		TargetType:   models.TargetTeam,
		TargetID:     f.teamID.Hex(),
	})
	seedGrant(f, &models.PermissionGrant{
		ResourceType: models.ResourceExperiment,
		ResourceID:   f.resourceID,
		Action:       models.ActionUpdate,
		TargetType:   models.TargetUser,
		TargetID:     f.studentID.Hex(),
	})
	seedGrant(f, &models.PermissionGrant{
		ResourceType: models.ResourceExperiment,
		ResourceID:   f.resourceID,
		Action:       models.ActionDelete,
		TargetType:   models.TargetRole,
		TargetID:     "teacher",
	})

	actions, err := f.permissions.GetUserPermissions(ctx, f.studentID, models.ResourceExperiment, f.resourceID)
	if err != nil {
		t.Fatalf("GetUserPermissions() error = %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("got %d actions %v, want 2 distinct", len(actions), actions)
	}
	got := map[models.PermissionAction]bool{}
	for _, a := range actions {
		got[a] = true
	}
	if !got[models.ActionRead] || !got[models.ActionUpdate] {
		t.Errorf("actions = %v, want read and update", actions)
	}

	admin, err := f.permissions.GetUserPermissions(ctx, f.adminID, models.ResourceExperiment, f.resourceID)
	if err != nil {
		t.Fatalf("GetUserPermissions(admin) error = %v", err)
	}
	if len(admin) != len(models.AllPermissionActions()) {
		t.Errorf("admin holds %d actions, want the full set", len(admin))
	}
}

func TestGetResourcePermissions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	live := seedGrant(f, &models.PermissionGrant{
		ResourceType: models.ResourceExperiment,
		ResourceID:   f.resourceID,
		Action:       models.ActionRead,
		TargetType:   models.TargetPublic,
	})
	expired := seedGrant(f, &models.PermissionGrant{
		ResourceType: models.ResourceExperiment,
		ResourceID:   f.resourceID,
		Action:       models.ActionUpdate,
		TargetType:   models.TargetPublic,
	})
	expired.ExpiresAt = time.Now().Unix() - 60
	// Type-level grant, never part of an exact-resource listing.
	seedGrant(f, &models.PermissionGrant{
		ResourceType: models.ResourceExperiment,
		Action:       models.ActionCreate,
		TargetType:   models.TargetPublic,
	})

	if _, err := f.permissions.GetResourcePermissions(ctx, f.studentID, models.ResourceExperiment, f.resourceID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("listing without manage: error = %v, want ErrForbidden", err)
	}

	grants, err := f.permissions.GetResourcePermissions(ctx, f.adminID, models.ResourceExperiment, f.resourceID)
	if err != nil {
		t.Fatalf("GetResourcePermissions(admin) error = %v", err)
	}
	if len(grants) != 1 || grants[0].ID != live.ID {
		t.Errorf("got %d grants, want only the live exact-resource grant", len(grants))
	}
}

func TestGrantPermission(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	grant := &models.PermissionGrant{
		ResourceType: models.ResourceExperiment,
		ResourceID:   f.resourceID,
		Action:       models.ActionRead,
		TargetType:   models.TargetUser,
		TargetID:     f.studentID.Hex(),
	}

	if _, err := f.permissions.GrantPermission(ctx, f.teacherID, grant); !errors.Is(err, ErrForbidden) {
		t.Fatalf("grant without manage: error = %v, want ErrForbidden", err)
	}

	created, err := f.permissions.GrantPermission(ctx, f.adminID, grant)
	if err != nil {
		t.Fatalf("GrantPermission(admin) error = %v", err)
	}
	if created.CreatedBy != f.adminID {
		t.Error("CreatedBy should be stamped with the grantor")
	}
	if len(f.publisher.published) != 1 {
		t.Errorf("published %d events, want 1", len(f.publisher.published))
	}
}

func TestGrantPermissionInvalidSpec(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	grant := &models.PermissionGrant{
		ResourceType: models.ResourceExperiment,
		ResourceID:   f.resourceID,
		Action:       "fly",
		TargetType:   models.TargetPublic,
	}
	if _, err := f.permissions.GrantPermission(ctx, f.adminID, grant); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
}

func TestRevokePermission(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	grant := seedGrant(f, &models.PermissionGrant{
		ResourceType: models.ResourceExperiment,
		ResourceID:   f.resourceID,
		Action:       models.ActionRead,
		TargetType:   models.TargetPublic,
	})

	if err := f.permissions.RevokePermission(ctx, f.studentID, grant.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("revoke without manage: error = %v, want ErrForbidden", err)
	}

	if err := f.permissions.RevokePermission(ctx, f.adminID, grant.ID); err != nil {
		t.Fatalf("RevokePermission(admin) error = %v", err)
	}
	if grant.IsActive {
		t.Error("revoked grant should be inactive")
	}

	if err := f.permissions.RevokePermission(ctx, f.adminID, bson.NewObjectID()); !errors.Is(err, ErrResourceNotFound) {
		t.Errorf("revoking unknown grant: error = %v, want ErrResourceNotFound", err)
	}
}

func TestUpdateResourcePermissions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	old := seedGrant(f, &models.PermissionGrant{
		ResourceType: models.ResourceExperiment,
		ResourceID:   f.resourceID,
		Action:       models.ActionRead,
		TargetType:   models.TargetPublic,
	})

	specs := []models.GrantSpec{
		{Action: models.ActionRead, TargetType: models.TargetTeam, TargetID: f.teamID.Hex()},
		{Action: models.ActionUpdate, TargetType: models.TargetUser, TargetID: f.studentID.Hex()},
	}

	if err := f.permissions.UpdateResourcePermissions(ctx, f.teacherID, models.ResourceExperiment, f.resourceID, specs); !errors.Is(err, ErrForbidden) {
		t.Fatalf("replace without manage: error = %v, want ErrForbidden", err)
	}

	bad := []models.GrantSpec{{Action: models.ActionRead, TargetType: "group", TargetID: "x"}}
	if err := f.permissions.UpdateResourcePermissions(ctx, f.adminID, models.ResourceExperiment, f.resourceID, bad); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("invalid spec: error = %v, want ErrInvalidInput", err)
	}

	if err := f.permissions.UpdateResourcePermissions(ctx, f.adminID, models.ResourceExperiment, bson.ObjectID{}, specs); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero resource id: error = %v, want ErrInvalidInput", err)
	}

	if err := f.permissions.UpdateResourcePermissions(ctx, f.adminID, models.ResourceExperiment, f.resourceID, specs); err != nil {
		t.Fatalf("UpdateResourcePermissions(admin) error = %v", err)
	}
	if old.IsActive {
		t.Error("previous grant should be deactivated by the replace")
	}
	if len(f.grants.replaced) != 1 || len(f.grants.replaced[0]) != 2 {
		t.Fatalf("replaced sets = %v, want one set of 2", f.grants.replaced)
	}
	if !f.permissions.CheckPermission(ctx, f.studentID, models.ResourceExperiment, models.ActionUpdate, f.resourceID) {
		t.Error("replacement grants should be effective immediately")
	}
}

func TestUpdateResourcePermissionsStorageFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	old := seedGrant(f, &models.PermissionGrant{
		ResourceType: models.ResourceExperiment,
		ResourceID:   f.resourceID,
		Action:       models.ActionRead,
		TargetType:   models.TargetPublic,
	})

	f.grants.insertErr = errors.New("write failed")
	specs := []models.GrantSpec{{Action: models.ActionRead, TargetType: models.TargetUser, TargetID: f.studentID.Hex()}}
	if err := f.permissions.UpdateResourcePermissions(ctx, f.adminID, models.ResourceExperiment, f.resourceID, specs); err == nil {
		t.Fatal("a failed replace must surface its error")
	}

	// The replace rolled back: the prior grant still conveys access and no
	// window with zero effective grants is observable.
	if !old.IsActive {
		t.Error("the previous grant must stay active after a failed replace")
	}
	if !f.permissions.CheckPermission(ctx, f.studentID, models.ResourceExperiment, models.ActionRead, f.resourceID) {
		t.Error("access through the previous grant must survive a failed replace")
	}
	if len(f.grants.replaced) != 0 {
		t.Errorf("replaced sets = %v, want none", f.grants.replaced)
	}
}
