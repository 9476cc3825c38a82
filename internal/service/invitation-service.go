package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"permission_service/internal/events"
	"permission_service/internal/models"
	"permission_service/internal/repository"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// InvitationService runs the share-invitation lifecycle. Acceptance is the
// only path from an invitation to an actual share.
type InvitationService struct {
	invitations InvitationStore
	sharings    SharingStore
	resources   ResourceCatalog
	users       UserDirectory
	teams       TeamDirectory
	sharing     *SharingService
	principals  *PrincipalService
	publisher   EventPublisher
}

func NewInvitationService(invitations InvitationStore, sharings SharingStore, resources ResourceCatalog, users UserDirectory, teams TeamDirectory, sharing *SharingService, principals *PrincipalService, publisher EventPublisher) *InvitationService {
	return &InvitationService{
		invitations: invitations,
		sharings:    sharings,
		resources:   resources,
		users:       users,
		teams:       teams,
		sharing:     sharing,
		principals:  principals,
		publisher:   publisher,
	}
}

// CreateInvitation proposes a share. The actor needs full access to the
// resource, same as sharing it outright.
func (s *InvitationService) CreateInvitation(ctx context.Context, actorID bson.ObjectID, inv *models.ShareInvitation) (*models.ShareInvitation, error) {
	if !models.IsValidAccessLevel(inv.AccessLevel) {
		return nil, fmt.Errorf("%w: unknown access level %q", ErrInvalidInput, inv.AccessLevel)
	}
	if err := validateInvitationTarget(inv.TargetType, inv.TargetID); err != nil {
		return nil, err
	}

	resource, err := s.resources.FindByID(ctx, inv.ResourceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, inv.ResourceID.Hex())
		}
		return nil, err
	}

	allowed, err := s.sharing.canManageSharing(ctx, actorID, inv.ResourceID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrForbidden
	}

	inv.ResourceType = resource.Type
	inv.Status = models.InvitationPending
	inv.CreatedBy = actorID

	created, err := s.invitations.New(ctx, inv)
	if err != nil {
		return nil, err
	}

	s.publishInvitation(ctx, events.InvitationCreated, created, actorID)
	return created, nil
}

// AcceptInvitation turns a pending invitation into a share. Only the
// addressee can accept: the named user, a holder of the named email, or an
// active member of the named team. An expired invitation is marked expired
// instead.
func (s *InvitationService) AcceptInvitation(ctx context.Context, userID, invitationID bson.ObjectID) (*models.ResourceSharing, error) {
	inv, err := s.getPending(ctx, userID, invitationID)
	if err != nil {
		return nil, err
	}

	sharing := &models.ResourceSharing{
		ResourceID:   inv.ResourceID,
		ResourceType: inv.ResourceType,
		SharedBy:     inv.CreatedBy,
		AccessLevel:  inv.AccessLevel,
		Status:       models.SharingActive,
		InvitationID: inv.ID,
	}

	var created *models.ResourceSharing
	switch inv.TargetType {
	case models.InviteTeam:
		teamID, convErr := bson.ObjectIDFromHex(inv.TargetID)
		if convErr != nil {
			return nil, fmt.Errorf("%w: malformed team id on invitation", ErrInvalidInput)
		}
		sharing.SharedWith = teamID
		sharing.SharedWithType = models.SharedWithTeam
		created, err = s.sharings.New(ctx, sharing)
	default:
		// User and email invitations both bind to the accepting user.
		sharing.SharedWith = userID
		sharing.SharedWithType = models.SharedWithUser
		created, err = s.sharings.UpsertDirectUserShare(ctx, sharing)
	}
	if err != nil {
		return nil, err
	}

	if err := s.invitations.UpdateStatus(ctx, inv.ID, models.InvitationAccepted, userID); err != nil {
		return nil, err
	}

	s.publishInvitation(ctx, events.InvitationAccepted, inv, userID)
	return created, nil
}

// RejectInvitation closes a pending invitation without creating a share.
func (s *InvitationService) RejectInvitation(ctx context.Context, userID, invitationID bson.ObjectID) error {
	inv, err := s.getPending(ctx, userID, invitationID)
	if err != nil {
		return err
	}

	if err := s.invitations.UpdateStatus(ctx, inv.ID, models.InvitationRejected, userID); err != nil {
		return err
	}

	s.publishInvitation(ctx, events.InvitationRejected, inv, userID)
	return nil
}

// ListMyInvitations lists invitations addressed to the user through any of
// its identities. The email usually comes from the gateway's auth headers;
// when it is absent the directory is consulted instead.
func (s *InvitationService) ListMyInvitations(ctx context.Context, userID bson.ObjectID, email string, status models.InvitationStatus) ([]*models.ShareInvitation, error) {
	principal, err := s.principals.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	if email == "" {
		if user, err := s.users.FindByID(ctx, userID); err == nil {
			email = user.Email
		}
	}

	return s.invitations.FindForTargets(ctx, userID, email, principal.TeamIDs, status)
}

// getPending loads the invitation, lazily expires it, and verifies the
// caller is its addressee.
func (s *InvitationService) getPending(ctx context.Context, userID, invitationID bson.ObjectID) (*models.ShareInvitation, error) {
	inv, err := s.invitations.FindByID(ctx, invitationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrInvitationNotFound, invitationID.Hex())
		}
		return nil, err
	}

	if inv.Status != models.InvitationPending {
		return nil, ErrInvitationClosed
	}
	if inv.IsExpired(time.Now()) {
		if err := s.invitations.UpdateStatus(ctx, inv.ID, models.InvitationExpired, bson.NilObjectID); err != nil {
			log.Printf("Failed to mark invitation %s expired: %v", inv.ID.Hex(), err)
		}
		return nil, ErrInvitationExpired
	}

	addressed, err := s.isAddressee(ctx, userID, inv)
	if err != nil {
		return nil, err
	}
	if !addressed {
		return nil, ErrForbidden
	}
	return inv, nil
}

func (s *InvitationService) isAddressee(ctx context.Context, userID bson.ObjectID, inv *models.ShareInvitation) (bool, error) {
	switch inv.TargetType {
	case models.InviteUser:
		return inv.TargetID == userID.Hex(), nil
	case models.InviteEmail:
		user, err := s.users.FindByID(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		return strings.EqualFold(inv.TargetID, user.Email), nil
	case models.InviteTeam:
		teamID, err := bson.ObjectIDFromHex(inv.TargetID)
		if err != nil {
			return false, nil
		}
		return s.teams.IsActiveMember(ctx, teamID, userID)
	default:
		return false, nil
	}
}

func validateInvitationTarget(targetType models.InvitationTargetType, targetID string) error {
	switch targetType {
	case models.InviteUser, models.InviteTeam:
		if _, err := bson.ObjectIDFromHex(targetID); err != nil {
			return fmt.Errorf("%w: target id must be a valid object id", ErrInvalidInput)
		}
	case models.InviteEmail:
		if !strings.Contains(targetID, "@") {
			return fmt.Errorf("%w: target id must be an email address", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown invitation target type %q", ErrInvalidInput, targetType)
	}
	return nil
}

func (s *InvitationService) publishInvitation(ctx context.Context, eventType events.EventType, inv *models.ShareInvitation, actorID bson.ObjectID) {
	if s.publisher == nil {
		return
	}
	evt := events.NewInvitationEvent(eventType,
		inv.ID.Hex(), inv.ResourceID.Hex(), string(inv.TargetType),
		inv.TargetID, string(inv.AccessLevel), actorID.Hex())
	if err := s.publisher.Publish(ctx, string(eventType), evt); err != nil {
		log.Printf("Failed to publish %s event: %v", eventType, err)
	}
}
