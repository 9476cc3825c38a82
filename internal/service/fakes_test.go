package service

import (
	"context"
	"fmt"
	"time"

	"permission_service/internal/models"
	"permission_service/internal/repository"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// In-memory fakes for the store interfaces. Each fake takes an optional err
// that every call returns, to exercise the fail-closed paths.

type fakeGrantStore struct {
	grants      []*models.PermissionGrant
	err         error
	insertErr   error
	deactivated []bson.ObjectID
	replaced    [][]*models.PermissionGrant
}

func (f *fakeGrantStore) New(_ context.Context, grant *models.PermissionGrant) (*models.PermissionGrant, error) {
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	if grant.ID.IsZero() {
		grant.ID = bson.NewObjectID()
	}
	grant.IsActive = true
	f.grants = append(f.grants, grant)
	return grant, nil
}

func (f *fakeGrantStore) FindByID(_ context.Context, id bson.ObjectID) (*models.PermissionGrant, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, g := range f.grants {
		if g.ID == id {
			return g, nil
		}
	}
	return nil, fmt.Errorf("grant %s: %w", id.Hex(), repository.ErrNotFound)
}

func (f *fakeGrantStore) Deactivate(_ context.Context, id bson.ObjectID) error {
	if f.err != nil {
		return f.err
	}
	for _, g := range f.grants {
		if g.ID == id {
			g.IsActive = false
			f.deactivated = append(f.deactivated, id)
			return nil
		}
	}
	return fmt.Errorf("grant %s: %w", id.Hex(), repository.ErrNotFound)
}

func (f *fakeGrantStore) FindCandidates(_ context.Context, resourceType models.ResourceType, action models.PermissionAction, resourceID bson.ObjectID) ([]*models.PermissionGrant, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.PermissionGrant
	for _, g := range f.grants {
		if g.ResourceType == resourceType && g.Action == action && g.IsActive && resourceScopeMatches(g, resourceID) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeGrantStore) FindCandidatesForResource(_ context.Context, resourceType models.ResourceType, resourceID bson.ObjectID) ([]*models.PermissionGrant, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.PermissionGrant
	for _, g := range f.grants {
		if g.ResourceType == resourceType && g.IsActive && resourceScopeMatches(g, resourceID) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeGrantStore) FindForResource(_ context.Context, resourceType models.ResourceType, resourceID bson.ObjectID) ([]*models.PermissionGrant, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.PermissionGrant
	for _, g := range f.grants {
		if g.ResourceType == resourceType && g.ResourceID == resourceID && g.IsActive {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeGrantStore) ReplaceForResource(_ context.Context, resourceType models.ResourceType, resourceID bson.ObjectID, grants []*models.PermissionGrant) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	for _, g := range f.grants {
		if g.ResourceType == resourceType && g.ResourceID == resourceID {
			g.IsActive = false
		}
	}
	f.grants = append(f.grants, grants...)
	f.replaced = append(f.replaced, grants)
	return nil
}

func (f *fakeGrantStore) InsertBatch(_ context.Context, grants []*models.PermissionGrant) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.grants = append(f.grants, grants...)
	return nil
}

func resourceScopeMatches(g *models.PermissionGrant, resourceID bson.ObjectID) bool {
	if resourceID.IsZero() {
		return g.ResourceID.IsZero()
	}
	return g.ResourceID.IsZero() || g.ResourceID == resourceID
}

type fakeRuleStore struct {
	rules map[bson.ObjectID]*models.PermissionRule
	err   error
}

func (f *fakeRuleStore) New(_ context.Context, rule *models.PermissionRule) (*models.PermissionRule, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, existing := range f.rules {
		if existing.Name == rule.Name {
			return nil, fmt.Errorf("rule name %q already exists", rule.Name)
		}
	}
	if rule.ID.IsZero() {
		rule.ID = bson.NewObjectID()
	}
	if f.rules == nil {
		f.rules = make(map[bson.ObjectID]*models.PermissionRule)
	}
	f.rules[rule.ID] = rule
	return rule, nil
}

func (f *fakeRuleStore) FindByID(_ context.Context, id bson.ObjectID) (*models.PermissionRule, error) {
	if f.err != nil {
		return nil, f.err
	}
	if rule, ok := f.rules[id]; ok {
		return rule, nil
	}
	return nil, fmt.Errorf("rule %s: %w", id.Hex(), repository.ErrNotFound)
}

func (f *fakeRuleStore) FindAll(_ context.Context, _, _ int) ([]*models.PermissionRule, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.PermissionRule
	for _, rule := range f.rules {
		out = append(out, rule)
	}
	return out, nil
}

func (f *fakeRuleStore) Delete(ctx context.Context, id bson.ObjectID) error {
	if _, err := f.FindByID(ctx, id); err != nil {
		return err
	}
	delete(f.rules, id)
	return nil
}

func (f *fakeRuleStore) EnsureBuiltIn(ctx context.Context, rules []*models.PermissionRule) error {
	if f.err != nil {
		return f.err
	}
	for _, rule := range rules {
		exists := false
		for _, existing := range f.rules {
			if existing.Name == rule.Name {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		rule.IsBuiltIn = true
		if _, err := f.New(ctx, rule); err != nil {
			return err
		}
	}
	return nil
}

type fakeUserDirectory struct {
	users map[bson.ObjectID]*models.User
	err   error
}

func (f *fakeUserDirectory) FindByID(_ context.Context, id bson.ObjectID) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user %s: %w", id.Hex(), repository.ErrNotFound)
}

type fakeTeamDirectory struct {
	teams       map[bson.ObjectID]*models.Team
	memberships map[bson.ObjectID][]bson.ObjectID // user -> active team ids
	admins      map[bson.ObjectID][]bson.ObjectID // user -> teams owned/administered
	err         error
}

func (f *fakeTeamDirectory) FindByID(_ context.Context, id bson.ObjectID) (*models.Team, error) {
	if f.err != nil {
		return nil, f.err
	}
	if team, ok := f.teams[id]; ok {
		return team, nil
	}
	return nil, fmt.Errorf("team %s: %w", id.Hex(), repository.ErrNotFound)
}

func (f *fakeTeamDirectory) FindActiveTeamIDs(_ context.Context, userID bson.ObjectID) ([]bson.ObjectID, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.memberships[userID], nil
}

func (f *fakeTeamDirectory) IsActiveMember(_ context.Context, teamID, userID bson.ObjectID) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	for _, id := range f.memberships[userID] {
		if id == teamID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTeamDirectory) IsOwnerOrAdmin(_ context.Context, teamID, userID bson.ObjectID) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	for _, id := range f.admins[userID] {
		if id == teamID {
			return true, nil
		}
	}
	return false, nil
}

type fakeOrgDirectory struct {
	memberships map[bson.ObjectID][]bson.ObjectID
	err         error
}

func (f *fakeOrgDirectory) FindOrgIDs(_ context.Context, userID bson.ObjectID) ([]bson.ObjectID, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.memberships[userID], nil
}

type fakeResourceCatalog struct {
	resources map[bson.ObjectID]*models.Resource
	err       error
}

func (f *fakeResourceCatalog) FindByID(_ context.Context, id bson.ObjectID) (*models.Resource, error) {
	if f.err != nil {
		return nil, f.err
	}
	if r, ok := f.resources[id]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("resource %s: %w", id.Hex(), repository.ErrNotFound)
}

type fakeSharingStore struct {
	shares     []*models.ResourceSharing
	err        error
	writeErr   error
	writeErrOn bson.ObjectID // resource the write error applies to; zero means all
	upserts    int
}

func (f *fakeSharingStore) failsWrite(resourceID bson.ObjectID) bool {
	return f.writeErr != nil && (f.writeErrOn.IsZero() || f.writeErrOn == resourceID)
}

func (f *fakeSharingStore) New(_ context.Context, sharing *models.ResourceSharing) (*models.ResourceSharing, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.failsWrite(sharing.ResourceID) {
		return nil, f.writeErr
	}
	if sharing.ID.IsZero() {
		sharing.ID = bson.NewObjectID()
	}
	if sharing.Status == "" {
		sharing.Status = models.SharingActive
	}
	f.shares = append(f.shares, sharing)
	return sharing, nil
}

func (f *fakeSharingStore) UpsertDirectUserShare(ctx context.Context, sharing *models.ResourceSharing) (*models.ResourceSharing, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.failsWrite(sharing.ResourceID) {
		return nil, f.writeErr
	}
	for _, s := range f.shares {
		if s.ResourceID == sharing.ResourceID && s.SharedWith == sharing.SharedWith &&
			s.SharedWithType == models.SharedWithUser && s.Status == models.SharingActive {
			s.Status = models.SharingRevoked
		}
	}
	f.upserts++
	return f.New(ctx, sharing)
}

func (f *fakeSharingStore) FindByID(_ context.Context, id bson.ObjectID) (*models.ResourceSharing, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, s := range f.shares {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("sharing %s: %w", id.Hex(), repository.ErrNotFound)
}

func (f *fakeSharingStore) Update(ctx context.Context, id bson.ObjectID, accessLevel models.AccessLevel, expiresAt int64) error {
	s, err := f.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if accessLevel != "" {
		s.AccessLevel = accessLevel
	}
	if expiresAt != 0 {
		s.ExpiresAt = expiresAt
	}
	return nil
}

func (f *fakeSharingStore) Revoke(ctx context.Context, id bson.ObjectID) error {
	s, err := f.FindByID(ctx, id)
	if err != nil {
		return err
	}
	s.Status = models.SharingRevoked
	return nil
}

func (f *fakeSharingStore) FindActiveByResource(_ context.Context, resourceID bson.ObjectID) ([]*models.ResourceSharing, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.ResourceSharing
	for _, s := range f.shares {
		if s.ResourceID == resourceID && s.Status == models.SharingActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSharingStore) FindEffectiveForTargets(_ context.Context, resourceID bson.ObjectID, targetType models.SharedWithType, targetIDs []bson.ObjectID) ([]*models.ResourceSharing, error) {
	if f.err != nil {
		return nil, f.err
	}
	now := time.Now()
	var out []*models.ResourceSharing
	for _, s := range f.shares {
		if s.ResourceID != resourceID || s.SharedWithType != targetType || !s.IsEffective(now) {
			continue
		}
		for _, id := range targetIDs {
			if s.SharedWith == id {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeSharingStore) FindSharedWith(_ context.Context, userID bson.ObjectID, teamIDs []bson.ObjectID, resourceType models.ResourceType) ([]*models.ResourceSharing, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.ResourceSharing
	for _, s := range f.shares {
		if s.Status != models.SharingActive {
			continue
		}
		if resourceType != "" && s.ResourceType != resourceType {
			continue
		}
		if s.SharedWithType == models.SharedWithUser && s.SharedWith == userID {
			out = append(out, s)
			continue
		}
		if s.SharedWithType == models.SharedWithTeam {
			for _, id := range teamIDs {
				if s.SharedWith == id {
					out = append(out, s)
					break
				}
			}
		}
	}
	return out, nil
}

type fakeInvitationStore struct {
	invitations map[bson.ObjectID]*models.ShareInvitation
	err         error
}

func (f *fakeInvitationStore) New(_ context.Context, inv *models.ShareInvitation) (*models.ShareInvitation, error) {
	if f.err != nil {
		return nil, f.err
	}
	if inv.ID.IsZero() {
		inv.ID = bson.NewObjectID()
	}
	if f.invitations == nil {
		f.invitations = make(map[bson.ObjectID]*models.ShareInvitation)
	}
	f.invitations[inv.ID] = inv
	return inv, nil
}

func (f *fakeInvitationStore) FindByID(_ context.Context, id bson.ObjectID) (*models.ShareInvitation, error) {
	if f.err != nil {
		return nil, f.err
	}
	if inv, ok := f.invitations[id]; ok {
		return inv, nil
	}
	return nil, fmt.Errorf("invitation %s: %w", id.Hex(), repository.ErrNotFound)
}

func (f *fakeInvitationStore) UpdateStatus(ctx context.Context, id bson.ObjectID, status models.InvitationStatus, processedBy bson.ObjectID) error {
	inv, err := f.FindByID(ctx, id)
	if err != nil {
		return err
	}
	inv.Status = status
	inv.ProcessedBy = processedBy
	return nil
}

func (f *fakeInvitationStore) FindForTargets(_ context.Context, userID bson.ObjectID, email string, teamIDs []bson.ObjectID, status models.InvitationStatus) ([]*models.ShareInvitation, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.ShareInvitation
	for _, inv := range f.invitations {
		if status != "" && inv.Status != status {
			continue
		}
		switch inv.TargetType {
		case models.InviteUser:
			if inv.TargetID == userID.Hex() {
				out = append(out, inv)
			}
		case models.InviteEmail:
			if email != "" && inv.TargetID == email {
				out = append(out, inv)
			}
		case models.InviteTeam:
			for _, id := range teamIDs {
				if inv.TargetID == id.Hex() {
					out = append(out, inv)
					break
				}
			}
		}
	}
	return out, nil
}

type fakeTemplateStore struct {
	templates map[bson.ObjectID]*models.SharingTemplate
	err       error
}

func (f *fakeTemplateStore) New(_ context.Context, tpl *models.SharingTemplate) (*models.SharingTemplate, error) {
	if f.err != nil {
		return nil, f.err
	}
	if tpl.ID.IsZero() {
		tpl.ID = bson.NewObjectID()
	}
	if f.templates == nil {
		f.templates = make(map[bson.ObjectID]*models.SharingTemplate)
	}
	f.templates[tpl.ID] = tpl
	return tpl, nil
}

func (f *fakeTemplateStore) FindByID(_ context.Context, id bson.ObjectID) (*models.SharingTemplate, error) {
	if f.err != nil {
		return nil, f.err
	}
	if tpl, ok := f.templates[id]; ok && tpl.Status != models.TemplateDeleted {
		return tpl, nil
	}
	return nil, fmt.Errorf("template %s: %w", id.Hex(), repository.ErrNotFound)
}

func (f *fakeTemplateStore) FindByOwner(_ context.Context, ownerID bson.ObjectID) ([]*models.SharingTemplate, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.SharingTemplate
	for _, tpl := range f.templates {
		if tpl.OwnerID == ownerID && tpl.Status != models.TemplateDeleted {
			out = append(out, tpl)
		}
	}
	return out, nil
}

func (f *fakeTemplateStore) SoftDelete(ctx context.Context, id bson.ObjectID) error {
	tpl, err := f.FindByID(ctx, id)
	if err != nil {
		return err
	}
	tpl.Status = models.TemplateDeleted
	return nil
}

type fakeActivityStore struct {
	accessLogs []*models.ResourceAccessLog
	teamLogs   []*models.TeamActivityLog
	userLogs   []*models.UserActivityLog
	err        error
}

func (f *fakeActivityStore) InsertAccessLog(_ context.Context, entry *models.ResourceAccessLog) error {
	if f.err != nil {
		return f.err
	}
	f.accessLogs = append(f.accessLogs, entry)
	return nil
}

func (f *fakeActivityStore) InsertTeamLog(_ context.Context, entry *models.TeamActivityLog) error {
	if f.err != nil {
		return f.err
	}
	f.teamLogs = append(f.teamLogs, entry)
	return nil
}

func (f *fakeActivityStore) InsertUserLog(_ context.Context, entry *models.UserActivityLog) error {
	if f.err != nil {
		return f.err
	}
	f.userLogs = append(f.userLogs, entry)
	return nil
}

func (f *fakeActivityStore) FindAccessLogs(_ context.Context, filter models.AccessLogFilter) ([]*models.ResourceAccessLog, int64, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	var out []*models.ResourceAccessLog
	for _, l := range f.accessLogs {
		if !filter.ResourceID.IsZero() && l.ResourceID != filter.ResourceID {
			continue
		}
		if !filter.UserID.IsZero() && l.UserID != filter.UserID {
			continue
		}
		out = append(out, l)
	}
	return out, int64(len(out)), nil
}

func (f *fakeActivityStore) FindTeamLogs(_ context.Context, teamID bson.ObjectID, _ models.AccessLogFilter) ([]*models.TeamActivityLog, int64, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	var out []*models.TeamActivityLog
	for _, l := range f.teamLogs {
		if l.TeamID == teamID {
			out = append(out, l)
		}
	}
	return out, int64(len(out)), nil
}

type fakePublisher struct {
	published []string
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, routingKey string, _ any) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, routingKey)
	return nil
}

// Common test fixture: an owner, a teacher with one team, a student, and an
// admin, plus one resource owned by the owner.
type fixture struct {
	ownerID   bson.ObjectID
	teacherID bson.ObjectID
	studentID bson.ObjectID
	adminID   bson.ObjectID
	teamID    bson.ObjectID
	orgID     bson.ObjectID

	resourceID bson.ObjectID

	grants    *fakeGrantStore
	users     *fakeUserDirectory
	teams     *fakeTeamDirectory
	orgs      *fakeOrgDirectory
	resources *fakeResourceCatalog
	sharings  *fakeSharingStore
	activity  *fakeActivityStore
	publisher *fakePublisher

	principals  *PrincipalService
	permissions *PermissionService
	sharing     *SharingService
	audit       *ActivityService
}

func newFixture() *fixture {
	f := &fixture{
		ownerID:    bson.NewObjectID(),
		teacherID:  bson.NewObjectID(),
		studentID:  bson.NewObjectID(),
		adminID:    bson.NewObjectID(),
		teamID:     bson.NewObjectID(),
		orgID:      bson.NewObjectID(),
		resourceID: bson.NewObjectID(),
	}

	f.grants = &fakeGrantStore{}
	f.users = &fakeUserDirectory{users: map[bson.ObjectID]*models.User{
		f.ownerID:   {ID: f.ownerID, Name: "Owner", Email: "owner@example.com", Role: models.RoleTeacher, IsActive: true},
		f.teacherID: {ID: f.teacherID, Name: "Teacher", Email: "teacher@example.com", Role: models.RoleTeacher, IsActive: true},
		f.studentID: {ID: f.studentID, Name: "Student", Email: "student@example.com", Role: models.RoleStudent, IsActive: true},
		f.adminID:   {ID: f.adminID, Name: "Admin", Email: "admin@example.com", Role: models.RoleAdmin, IsActive: true},
	}}
	f.teams = &fakeTeamDirectory{
		memberships: map[bson.ObjectID][]bson.ObjectID{
			f.teacherID: {f.teamID},
			f.studentID: {f.teamID},
		},
		admins: map[bson.ObjectID][]bson.ObjectID{
			f.teacherID: {f.teamID},
		},
	}
	f.orgs = &fakeOrgDirectory{memberships: map[bson.ObjectID][]bson.ObjectID{
		f.teacherID: {f.orgID},
	}}
	f.resources = &fakeResourceCatalog{resources: map[bson.ObjectID]*models.Resource{
		f.resourceID: {ID: f.resourceID, Name: "Chemistry Lab", Type: models.ResourceExperiment, OwnerID: f.ownerID},
	}}
	f.sharings = &fakeSharingStore{}
	f.activity = &fakeActivityStore{}
	f.publisher = &fakePublisher{}

	f.principals = NewPrincipalService(f.users, f.teams, f.orgs, nil, 0)
	f.permissions = NewPermissionService(f.grants, f.principals, f.publisher)
	f.audit = NewActivityService(f.activity, f.resources, f.teams, f.principals)
	f.sharing = NewSharingService(f.sharings, f.resources, f.principals, f.audit, f.publisher)
	return f
}
