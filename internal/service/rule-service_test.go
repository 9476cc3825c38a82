package service

import (
	"context"
	"errors"
	"testing"

	"permission_service/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
)

func newRuleFixture() (*fixture, *RuleService, *fakeRuleStore) {
	f := newFixture()
	rules := &fakeRuleStore{}
	svc := NewRuleService(rules, f.grants, f.permissions, f.publisher)
	return f, svc, rules
}

func TestCreateRule(t *testing.T) {
	f, svc, _ := newRuleFixture()
	ctx := context.Background()

	rule := &models.PermissionRule{
		Name:      "lab defaults",
		IsBuiltIn: true, // callers cannot mint built-ins
		Permissions: []models.GrantSpec{
			{Action: models.ActionRead, TargetType: models.TargetRole, TargetID: "student"},
		},
	}
	created, err := svc.CreateRule(ctx, f.teacherID, rule)
	if err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}
	if created.IsBuiltIn {
		t.Error("a created rule must never come out built-in")
	}
	if created.CreatedBy != f.teacherID {
		t.Error("CreatedBy should be stamped with the creator")
	}

	tests := []struct {
		name string
		rule *models.PermissionRule
	}{
		{"missing name", &models.PermissionRule{Permissions: rule.Permissions}},
		{"no permissions", &models.PermissionRule{Name: "x"}},
		{"invalid spec", &models.PermissionRule{Name: "x", Permissions: []models.GrantSpec{{Action: "fly", TargetType: models.TargetPublic}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CreateRule(ctx, f.teacherID, tt.rule); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestDeleteRule(t *testing.T) {
	f, svc, rules := newRuleFixture()
	ctx := context.Background()

	custom, _ := rules.New(ctx, &models.PermissionRule{Name: "custom", Permissions: []models.GrantSpec{{Action: models.ActionRead, TargetType: models.TargetPublic}}})
	builtin, _ := rules.New(ctx, &models.PermissionRule{Name: "baked-in", IsBuiltIn: true, Permissions: []models.GrantSpec{{Action: models.ActionRead, TargetType: models.TargetPublic}}})

	if err := svc.DeleteRule(ctx, builtin.ID); !errors.Is(err, ErrBuiltInRule) {
		t.Errorf("deleting a built-in rule: error = %v, want ErrBuiltInRule", err)
	}
	if err := svc.DeleteRule(ctx, custom.ID); err != nil {
		t.Errorf("DeleteRule(custom) error = %v", err)
	}
	if err := svc.DeleteRule(ctx, bson.NewObjectID()); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("deleting unknown rule: error = %v, want ErrRuleNotFound", err)
	}
	_ = f
}

func TestApplyRule(t *testing.T) {
	f, svc, rules := newRuleFixture()
	ctx := context.Background()

	rule, _ := rules.New(ctx, &models.PermissionRule{
		Name: "classroom",
		Permissions: []models.GrantSpec{
			{Action: models.ActionRead, TargetType: models.TargetRole, TargetID: "student"},
			{Action: models.ActionManage, TargetType: models.TargetRole, TargetID: "teacher"},
		},
	})

	if _, err := svc.ApplyRule(ctx, f.teacherID, rule.ID, models.ResourceExperiment, f.resourceID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("apply without manage: error = %v, want ErrForbidden", err)
	}

	// Existing grants survive: applying is additive.
	seedGrant(f, &models.PermissionGrant{
		ResourceType: models.ResourceExperiment,
		ResourceID:   f.resourceID,
		Action:       models.ActionRead,
		TargetType:   models.TargetPublic,
	})

	grants, err := svc.ApplyRule(ctx, f.adminID, rule.ID, models.ResourceExperiment, f.resourceID)
	if err != nil {
		t.Fatalf("ApplyRule(admin) error = %v", err)
	}
	if len(grants) != 2 {
		t.Fatalf("materialized %d grants, want 2", len(grants))
	}
	for _, g := range grants {
		if g.ResourceType != models.ResourceExperiment || g.ResourceID != f.resourceID {
			t.Error("materialized grant should be bound to the target resource")
		}
		if g.CreatedBy != f.adminID {
			t.Error("materialized grant should record the applier")
		}
		if g.ID.IsZero() || !g.IsActive {
			t.Error("materialized grant should carry a fresh id and start active")
		}
	}
	if len(f.grants.grants) != 3 {
		t.Errorf("store holds %d grants, want the prior one plus 2", len(f.grants.grants))
	}

	if !f.permissions.CheckPermission(ctx, f.teacherID, models.ResourceExperiment, models.ActionManage, f.resourceID) {
		t.Error("teacher should hold manage after the rule is applied")
	}
}

func TestCreateBuiltInRules(t *testing.T) {
	f, svc, rules := newRuleFixture()
	ctx := context.Background()

	if err := svc.CreateBuiltInRules(ctx); err != nil {
		t.Fatalf("CreateBuiltInRules() error = %v", err)
	}
	if len(rules.rules) != 3 {
		t.Fatalf("seeded %d rules, want 3", len(rules.rules))
	}
	for _, rule := range rules.rules {
		if !rule.IsBuiltIn {
			t.Errorf("seeded rule %q should be built-in", rule.Name)
		}
	}

	// Seeding again must not duplicate or reset anything.
	if err := svc.CreateBuiltInRules(ctx); err != nil {
		t.Fatalf("second seeding error = %v", err)
	}
	if len(rules.rules) != 3 {
		t.Errorf("second seeding changed the rule count to %d", len(rules.rules))
	}
	_ = f
}
