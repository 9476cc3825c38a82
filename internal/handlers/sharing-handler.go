package handlers

import (
	"strconv"

	"permission_service/internal/middleware"
	"permission_service/internal/models"
	"permission_service/internal/service"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var sharingOperations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sharing_operations_total",
		Help: "Total number of sharing operations",
	},
	[]string{"operation", "status"},
)

type SharingHandler struct {
	sharingService    *service.SharingService
	invitationService *service.InvitationService
	batchService      *service.BatchService
	activityService   *service.ActivityService
	jwtSecret         string
}

func NewSharingHandler(sharingService *service.SharingService, invitationService *service.InvitationService, batchService *service.BatchService, activityService *service.ActivityService, jwtSecret string) *SharingHandler {
	return &SharingHandler{
		sharingService:    sharingService,
		invitationService: invitationService,
		batchService:      batchService,
		activityService:   activityService,
		jwtSecret:         jwtSecret,
	}
}

func (h *SharingHandler) RegisterRoutes(app *fiber.App) {
	group := app.Group("/protected/sharing", middleware.RequireIdentity(h.jwtSecret))

	group.Post("/", h.ShareResource)
	group.Get("/resources/:resourceId", h.GetResourceSharing)
	group.Put("/:id", h.UpdateSharing)
	group.Delete("/:id", h.RevokeSharing)
	group.Get("/shared-with-me", h.GetSharedWithMe)
	group.Post("/check-access", h.CheckAccess)
	group.Get("/resources/:resourceId/logs", h.GetResourceAccessLogs)
	group.Get("/teams/:teamId/logs", h.GetTeamActivityLogs)

	group.Post("/invitations", h.CreateInvitation)
	group.Get("/invitations", h.ListMyInvitations)
	group.Post("/invitations/:id/process", h.ProcessInvitation)

	group.Post("/batch", h.BatchShare)
	group.Post("/templates", h.CreateTemplate)
	group.Get("/templates", h.ListMyTemplates)
	group.Delete("/templates/:id", h.DeleteTemplate)
	group.Post("/templates/:id/apply", h.ApplyTemplate)
}

type shareRequest struct {
	ResourceID     string                `json:"resourceId"`
	SharedWith     string                `json:"sharedWith"`
	SharedWithType models.SharedWithType `json:"sharedWithType"`
	AccessLevel    models.AccessLevel    `json:"accessLevel"`
	ExpiresAt      int64                 `json:"expiresAt"`
}

func (h *SharingHandler) ShareResource(c fiber.Ctx) error {
	userID := middleware.UserID(c)

	var req shareRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	resourceID, err := bson.ObjectIDFromHex(req.ResourceID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed resource id",
		})
	}
	sharedWith, err := bson.ObjectIDFromHex(req.SharedWith)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed share target id",
		})
	}

	sharing := &models.ResourceSharing{
		ResourceID:     resourceID,
		SharedWith:     sharedWith,
		SharedWithType: req.SharedWithType,
		AccessLevel:    req.AccessLevel,
		ExpiresAt:      req.ExpiresAt,
	}

	created, err := h.sharingService.ShareResource(c.Context(), userID, sharing)
	if err != nil {
		sharingOperations.WithLabelValues("share", "failure").Inc()
		return respondServiceError(c, err)
	}
	sharingOperations.WithLabelValues("share", "success").Inc()

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"data": created,
	})
}

func (h *SharingHandler) GetResourceSharing(c fiber.Ctx) error {
	userID := middleware.UserID(c)

	resourceID, err := bson.ObjectIDFromHex(c.Params("resourceId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed resource id",
		})
	}

	sharings, err := h.sharingService.GetResourceSharing(c.Context(), userID, resourceID)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"data": sharings,
	})
}

type updateSharingRequest struct {
	AccessLevel models.AccessLevel `json:"accessLevel"`
	ExpiresAt   int64              `json:"expiresAt"`
}

func (h *SharingHandler) UpdateSharing(c fiber.Ctx) error {
	userID := middleware.UserID(c)

	sharingID, err := bson.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed sharing id",
		})
	}

	var req updateSharingRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	updated, err := h.sharingService.UpdateSharing(c.Context(), userID, sharingID, req.AccessLevel, req.ExpiresAt)
	if err != nil {
		sharingOperations.WithLabelValues("update", "failure").Inc()
		return respondServiceError(c, err)
	}
	sharingOperations.WithLabelValues("update", "success").Inc()

	return c.JSON(fiber.Map{
		"data": updated,
	})
}

func (h *SharingHandler) RevokeSharing(c fiber.Ctx) error {
	userID := middleware.UserID(c)

	sharingID, err := bson.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed sharing id",
		})
	}

	if err := h.sharingService.RevokeSharing(c.Context(), userID, sharingID); err != nil {
		sharingOperations.WithLabelValues("revoke", "failure").Inc()
		return respondServiceError(c, err)
	}
	sharingOperations.WithLabelValues("revoke", "success").Inc()

	return c.JSON(fiber.Map{
		"message": "sharing revoked",
	})
}

func (h *SharingHandler) GetSharedWithMe(c fiber.Ctx) error {
	userID := middleware.UserID(c)
	resourceType := models.ResourceType(c.Query("resourceType"))

	sharings, err := h.sharingService.GetSharedWithMe(c.Context(), userID, resourceType)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"data": sharings,
	})
}

type checkAccessRequest struct {
	ResourceID string            `json:"resourceId"`
	Access     models.AccessType `json:"access"`
}

// CheckAccess answers allowed/denied through the sharing channel, with the
// resolved tier when one exists.
func (h *SharingHandler) CheckAccess(c fiber.Ctx) error {
	userID := middleware.UserID(c)

	var req checkAccessRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	resourceID, err := bson.ObjectIDFromHex(req.ResourceID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed resource id",
		})
	}

	allowed := h.sharingService.ValidateAccess(c.Context(), userID, resourceID, req.Access)

	response := fiber.Map{"allowed": allowed}
	if level, ok, err := h.sharingService.GetUserAccessLevel(c.Context(), userID, resourceID); err == nil && ok {
		response["accessLevel"] = level
	}
	return c.JSON(response)
}

func (h *SharingHandler) GetResourceAccessLogs(c fiber.Ctx) error {
	userID := middleware.UserID(c)

	resourceID, err := bson.ObjectIDFromHex(c.Params("resourceId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed resource id",
		})
	}

	logs, total, err := h.activityService.GetResourceAccessLogs(c.Context(), userID, resourceID, logFilterFromQuery(c))
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"data":  logs,
		"total": total,
	})
}

func (h *SharingHandler) GetTeamActivityLogs(c fiber.Ctx) error {
	userID := middleware.UserID(c)

	teamID, err := bson.ObjectIDFromHex(c.Params("teamId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed team id",
		})
	}

	logs, total, err := h.activityService.GetTeamActivityLogs(c.Context(), userID, teamID, logFilterFromQuery(c))
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"data":  logs,
		"total": total,
	})
}

func logFilterFromQuery(c fiber.Ctx) models.AccessLogFilter {
	filter := models.AccessLogFilter{}
	filter.Page, _ = strconv.Atoi(c.Query("page", "1"))
	filter.Limit, _ = strconv.Atoi(c.Query("limit", "50"))
	filter.StartTime, _ = strconv.ParseInt(c.Query("startTime", "0"), 10, 64)
	filter.EndTime, _ = strconv.ParseInt(c.Query("endTime", "0"), 10, 64)
	if action := c.Query("action"); action != "" {
		filter.Actions = []string{action}
	}
	return filter
}

type createInvitationRequest struct {
	ResourceID  string                      `json:"resourceId"`
	TargetType  models.InvitationTargetType `json:"targetType"`
	TargetID    string                      `json:"targetId"`
	AccessLevel models.AccessLevel          `json:"accessLevel"`
	Message     string                      `json:"message"`
	ExpiresAt   int64                       `json:"expiresAt"`
}

func (h *SharingHandler) CreateInvitation(c fiber.Ctx) error {
	userID := middleware.UserID(c)

	var req createInvitationRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	resourceID, err := bson.ObjectIDFromHex(req.ResourceID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed resource id",
		})
	}

	inv := &models.ShareInvitation{
		ResourceID:  resourceID,
		TargetType:  req.TargetType,
		TargetID:    req.TargetID,
		AccessLevel: req.AccessLevel,
		Message:     req.Message,
		ExpiresAt:   req.ExpiresAt,
	}

	created, err := h.invitationService.CreateInvitation(c.Context(), userID, inv)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"data": created,
	})
}

func (h *SharingHandler) ListMyInvitations(c fiber.Ctx) error {
	userID := middleware.UserID(c)
	status := models.InvitationStatus(c.Query("status"))

	invitations, err := h.invitationService.ListMyInvitations(c.Context(), userID, middleware.UserEmail(c), status)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"data": invitations,
	})
}

type processInvitationRequest struct {
	Action string `json:"action"` // accept or reject
}

func (h *SharingHandler) ProcessInvitation(c fiber.Ctx) error {
	userID := middleware.UserID(c)

	invitationID, err := bson.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed invitation id",
		})
	}

	var req processInvitationRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	switch req.Action {
	case "accept":
		sharing, err := h.invitationService.AcceptInvitation(c.Context(), userID, invitationID)
		if err != nil {
			return respondServiceError(c, err)
		}
		return c.JSON(fiber.Map{
			"message": "invitation accepted",
			"data":    sharing,
		})
	case "reject":
		if err := h.invitationService.RejectInvitation(c.Context(), userID, invitationID); err != nil {
			return respondServiceError(c, err)
		}
		return c.JSON(fiber.Map{
			"message": "invitation rejected",
		})
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "action must be accept or reject",
		})
	}
}

type batchShareRequest struct {
	ResourceIDs []string                `json:"resourceIds"`
	Settings    []models.SharingSetting `json:"sharingSettings"`
	ExpiresAt   int64                   `json:"expiresAt"`
}

func (h *SharingHandler) BatchShare(c fiber.Ctx) error {
	userID := middleware.UserID(c)

	var req batchShareRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	resourceIDs, err := parseObjectIDs(req.ResourceIDs)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed resource id in list",
		})
	}

	result, err := h.batchService.BatchShare(c.Context(), userID, resourceIDs, req.Settings, req.ExpiresAt)
	if err != nil {
		sharingOperations.WithLabelValues("batch", "failure").Inc()
		return respondServiceError(c, err)
	}
	sharingOperations.WithLabelValues("batch", "success").Inc()

	return c.JSON(fiber.Map{
		"data": result,
	})
}

type createTemplateRequest struct {
	Name        string                  `json:"templateName"`
	Description string                  `json:"description"`
	Settings    []models.SharingSetting `json:"sharingSettings"`
}

func (h *SharingHandler) CreateTemplate(c fiber.Ctx) error {
	userID := middleware.UserID(c)

	var req createTemplateRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	tpl := &models.SharingTemplate{
		Name:        req.Name,
		Description: req.Description,
		Settings:    req.Settings,
	}

	created, err := h.batchService.CreateTemplate(c.Context(), userID, tpl)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"data": created,
	})
}

func (h *SharingHandler) ListMyTemplates(c fiber.Ctx) error {
	userID := middleware.UserID(c)

	templates, err := h.batchService.ListMyTemplates(c.Context(), userID)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"data": templates,
	})
}

func (h *SharingHandler) DeleteTemplate(c fiber.Ctx) error {
	userID := middleware.UserID(c)

	templateID, err := bson.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed template id",
		})
	}

	if err := h.batchService.DeleteTemplate(c.Context(), userID, templateID); err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "template deleted",
	})
}

type applyTemplateRequest struct {
	ResourceIDs []string `json:"resourceIds"`
}

func (h *SharingHandler) ApplyTemplate(c fiber.Ctx) error {
	userID := middleware.UserID(c)

	templateID, err := bson.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed template id",
		})
	}

	var req applyTemplateRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	resourceIDs, err := parseObjectIDs(req.ResourceIDs)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed resource id in list",
		})
	}

	result, err := h.batchService.ApplyTemplate(c.Context(), userID, templateID, resourceIDs)
	if err != nil {
		sharingOperations.WithLabelValues("apply_template", "failure").Inc()
		return respondServiceError(c, err)
	}
	sharingOperations.WithLabelValues("apply_template", "success").Inc()

	return c.JSON(fiber.Map{
		"data": result,
	})
}

func parseObjectIDs(hexes []string) ([]bson.ObjectID, error) {
	ids := make([]bson.ObjectID, len(hexes))
	for i, hex := range hexes {
		id, err := bson.ObjectIDFromHex(hex)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}
