package service

import (
	"context"
	"errors"
	"fmt"

	"permission_service/internal/models"
	"permission_service/internal/repository"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// BatchService shares many resources in one call and manages the sharing
// templates that feed it. Batches are best-effort: each resource succeeds
// or fails on its own and the result reports both sides.
type BatchService struct {
	templates TemplateStore
	resources ResourceCatalog
	sharing   *SharingService
	activity  *ActivityService
}

func NewBatchService(templates TemplateStore, resources ResourceCatalog, sharing *SharingService, activity *ActivityService) *BatchService {
	return &BatchService{
		templates: templates,
		resources: resources,
		sharing:   sharing,
		activity:  activity,
	}
}

// BatchShare applies the settings to every resource. A failure on one
// resource never stops the rest, and ids that resolve to nothing are
// skipped without being reported.
func (s *BatchService) BatchShare(ctx context.Context, actorID bson.ObjectID, resourceIDs []bson.ObjectID, settings []models.SharingSetting, expiresAt int64) (*models.BatchShareResult, error) {
	if len(resourceIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one resource is required", ErrInvalidInput)
	}
	if len(settings) == 0 {
		return nil, fmt.Errorf("%w: at least one sharing setting is required", ErrInvalidInput)
	}
	for i, setting := range settings {
		if !models.IsValidAccessLevel(setting.AccessLevel) {
			return nil, fmt.Errorf("%w: setting %d has unknown access level %q", ErrInvalidInput, i, setting.AccessLevel)
		}
		if setting.TargetType != models.SharedWithUser && setting.TargetType != models.SharedWithTeam {
			return nil, fmt.Errorf("%w: setting %d has unknown target type %q", ErrInvalidInput, i, setting.TargetType)
		}
	}

	result := &models.BatchShareResult{TotalResources: len(resourceIDs)}

	for _, resourceID := range resourceIDs {
		s.shareOne(ctx, actorID, resourceID, settings, expiresAt, result)
	}

	s.activity.RecordUserActivity(ctx, &models.UserActivityLog{
		UserID: actorID,
		Action: "batch_share",
		Details: map[string]any{
			"totalResources":   result.TotalResources,
			"successfulShares": result.SuccessfulShares,
			"failedShares":     result.FailedShares,
			"unauthorized":     result.UnauthorizedResources,
		},
	})
	return result, nil
}

func (s *BatchService) shareOne(ctx context.Context, actorID, resourceID bson.ObjectID, settings []models.SharingSetting, expiresAt int64, result *models.BatchShareResult) {
	resource, err := s.resources.FindByID(ctx, resourceID)
	if errors.Is(err, repository.ErrNotFound) {
		// Ids that do not resolve are dropped; they count toward the
		// total only.
		return
	}
	if err != nil {
		result.FailedShares++
		result.FailureDetails = append(result.FailureDetails, models.ShareOutcome{
			ResourceID: resourceID.Hex(),
			Reason:     "storage error",
		})
		return
	}

	allowed, err := s.sharing.canManageSharing(ctx, actorID, resourceID)
	if err != nil {
		result.FailedShares++
		result.FailureDetails = append(result.FailureDetails, models.ShareOutcome{
			ResourceID:   resourceID.Hex(),
			ResourceName: resource.Name,
			Reason:       "storage error",
		})
		return
	}
	if !allowed {
		// Unauthorized resources are tallied on both sides: the
		// unauthorized count and the failed list.
		result.UnauthorizedResources++
		result.FailedShares++
		result.FailureDetails = append(result.FailureDetails, models.ShareOutcome{
			ResourceID:   resourceID.Hex(),
			ResourceName: resource.Name,
			Reason:       "no permission",
		})
		return
	}

	applied := 0
	for _, setting := range settings {
		sharing := &models.ResourceSharing{
			ResourceID:     resourceID,
			SharedWith:     setting.TargetID,
			SharedWithType: setting.TargetType,
			AccessLevel:    setting.AccessLevel,
			ExpiresAt:      expiresAt,
		}
		if _, err := s.sharing.ShareResource(ctx, actorID, sharing); err != nil {
			result.FailedShares++
			result.FailureDetails = append(result.FailureDetails, models.ShareOutcome{
				ResourceID:   resourceID.Hex(),
				ResourceName: resource.Name,
				Reason:       "storage error",
			})
			return
		}
		applied++
	}

	result.SuccessfulShares++
	result.SuccessDetails = append(result.SuccessDetails, models.ShareOutcome{
		ResourceID:      resourceID.Hex(),
		ResourceName:    resource.Name,
		AppliedSettings: applied,
	})
}

// ApplyTemplate stamps the caller's template onto the resources.
func (s *BatchService) ApplyTemplate(ctx context.Context, actorID, templateID bson.ObjectID, resourceIDs []bson.ObjectID) (*models.BatchShareResult, error) {
	tpl, err := s.getTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if tpl.OwnerID != actorID {
		return nil, ErrForbidden
	}
	return s.BatchShare(ctx, actorID, resourceIDs, tpl.Settings, 0)
}

func (s *BatchService) CreateTemplate(ctx context.Context, ownerID bson.ObjectID, tpl *models.SharingTemplate) (*models.SharingTemplate, error) {
	if tpl.Name == "" {
		return nil, fmt.Errorf("%w: template name is required", ErrInvalidInput)
	}
	if len(tpl.Settings) == 0 {
		return nil, fmt.Errorf("%w: template needs at least one sharing setting", ErrInvalidInput)
	}
	for i, setting := range tpl.Settings {
		if !models.IsValidAccessLevel(setting.AccessLevel) {
			return nil, fmt.Errorf("%w: setting %d has unknown access level %q", ErrInvalidInput, i, setting.AccessLevel)
		}
		if setting.TargetType != models.SharedWithUser && setting.TargetType != models.SharedWithTeam {
			return nil, fmt.Errorf("%w: setting %d has unknown target type %q", ErrInvalidInput, i, setting.TargetType)
		}
		if setting.TargetID.IsZero() {
			return nil, fmt.Errorf("%w: setting %d is missing its target", ErrInvalidInput, i)
		}
	}

	tpl.OwnerID = ownerID
	tpl.Status = models.TemplateActive
	return s.templates.New(ctx, tpl)
}

func (s *BatchService) ListMyTemplates(ctx context.Context, ownerID bson.ObjectID) ([]*models.SharingTemplate, error) {
	return s.templates.FindByOwner(ctx, ownerID)
}

func (s *BatchService) DeleteTemplate(ctx context.Context, actorID, templateID bson.ObjectID) error {
	tpl, err := s.getTemplate(ctx, templateID)
	if err != nil {
		return err
	}
	if tpl.OwnerID != actorID {
		return ErrForbidden
	}
	return s.templates.SoftDelete(ctx, templateID)
}

func (s *BatchService) getTemplate(ctx context.Context, id bson.ObjectID) (*models.SharingTemplate, error) {
	tpl, err := s.templates.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id.Hex())
		}
		return nil, err
	}
	return tpl, nil
}
