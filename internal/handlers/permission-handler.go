package handlers

import (
	"log"
	"time"

	"permission_service/internal/middleware"
	"permission_service/internal/models"
	"permission_service/internal/repository"
	"permission_service/internal/service"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var (
	// Counter for permission checks
	permissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permission_checks_total",
			Help: "Total number of permission checks",
		},
		[]string{"result", "resource_type"}, // result: allowed/denied
	)

	// Histogram for check latency
	checkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "permission_check_duration_seconds",
			Help:    "Time spent evaluating permission checks",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	// Counter for grant mutations
	grantMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permission_grant_mutations_total",
			Help: "Total number of grant create/revoke/replace operations",
		},
		[]string{"operation", "status"},
	)
)

type PermissionHandler struct {
	permissionService *service.PermissionService
	principalService  *service.PrincipalService
	redisRepo         *repository.RedisRepo
	jwtSecret         string
}

func NewPermissionHandler(permissionService *service.PermissionService, principalService *service.PrincipalService, redisRepo *repository.RedisRepo, jwtSecret string) *PermissionHandler {
	return &PermissionHandler{
		permissionService: permissionService,
		principalService:  principalService,
		redisRepo:         redisRepo,
		jwtSecret:         jwtSecret,
	}
}

func (h *PermissionHandler) RegisterRoutes(app *fiber.App) {
	app.Get("/health", h.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	group := app.Group("/protected/permissions", middleware.RequireIdentity(h.jwtSecret))

	group.Get("/check", h.CheckPermission)
	group.Get("/me/:resourceType/:resourceId", h.GetMyPermissions)
	group.Get("/resources/:resourceType/:resourceId", h.GetResourcePermissions)
	group.Put("/resources/:resourceType/:resourceId", h.UpdateResourcePermissions)
	group.Post("/", h.GrantPermission)
	group.Delete("/:id", h.RevokePermission)
	group.Post("/maintenance", h.Maintenance)
}

func (h *PermissionHandler) HealthCheck(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// CheckPermission answers allowed/denied. It never returns an error status
// for evaluation problems; those read as denied.
func (h *PermissionHandler) CheckPermission(c fiber.Ctx) error {
	userID := middleware.UserID(c)

	resourceType := models.ResourceType(c.Query("resourceType"))
	action := models.PermissionAction(c.Query("action"))
	if resourceType == "" || action == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "resourceType and action are required",
		})
	}

	var resourceID bson.ObjectID
	if hex := c.Query("resourceId"); hex != "" {
		var err error
		resourceID, err = bson.ObjectIDFromHex(hex)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "malformed resourceId",
			})
		}
	}

	start := time.Now()
	allowed := h.permissionService.CheckPermission(c.Context(), userID, resourceType, action, resourceID)

	result := "denied"
	if allowed {
		result = "allowed"
	}
	permissionChecks.WithLabelValues(result, string(resourceType)).Inc()
	checkDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())

	return c.JSON(fiber.Map{
		"allowed": allowed,
	})
}

func (h *PermissionHandler) GetMyPermissions(c fiber.Ctx) error {
	userID := middleware.UserID(c)

	resourceType := models.ResourceType(c.Params("resourceType"))
	resourceID, err := bson.ObjectIDFromHex(c.Params("resourceId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed resource id",
		})
	}

	actions, err := h.permissionService.GetUserPermissions(c.Context(), userID, resourceType, resourceID)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"resourceType": resourceType,
			"resourceId":   resourceID.Hex(),
			"actions":      actions,
		},
	})
}

func (h *PermissionHandler) GetResourcePermissions(c fiber.Ctx) error {
	userID := middleware.UserID(c)

	resourceType := models.ResourceType(c.Params("resourceType"))
	resourceID, err := bson.ObjectIDFromHex(c.Params("resourceId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed resource id",
		})
	}

	grants, err := h.permissionService.GetResourcePermissions(c.Context(), userID, resourceType, resourceID)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"data": grants,
	})
}

type updatePermissionsRequest struct {
	Permissions []models.GrantSpec `json:"permissions"`
}

func (h *PermissionHandler) UpdateResourcePermissions(c fiber.Ctx) error {
	userID := middleware.UserID(c)

	resourceType := models.ResourceType(c.Params("resourceType"))
	resourceID, err := bson.ObjectIDFromHex(c.Params("resourceId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed resource id",
		})
	}

	var req updatePermissionsRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	err = h.permissionService.UpdateResourcePermissions(c.Context(), userID, resourceType, resourceID, req.Permissions)
	if err != nil {
		grantMutations.WithLabelValues("replace", "failure").Inc()
		return respondServiceError(c, err)
	}
	grantMutations.WithLabelValues("replace", "success").Inc()

	return c.JSON(fiber.Map{
		"message": "resource permissions updated",
	})
}

type grantRequest struct {
	ResourceType models.ResourceType         `json:"resourceType"`
	ResourceID   string                      `json:"resourceId"`
	Action       models.PermissionAction     `json:"action"`
	TargetType   models.PermissionTargetType `json:"targetType"`
	TargetID     string                      `json:"targetId"`
	Conditions   map[string]any              `json:"conditions"`
	ExpiresAt    int64                       `json:"expiresAt"`
}

func (h *PermissionHandler) GrantPermission(c fiber.Ctx) error {
	userID := middleware.UserID(c)

	var req grantRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	grant := &models.PermissionGrant{
		ResourceType: req.ResourceType,
		Action:       req.Action,
		TargetType:   req.TargetType,
		TargetID:     req.TargetID,
		Conditions:   req.Conditions,
		ExpiresAt:    req.ExpiresAt,
	}
	if req.ResourceID != "" {
		resourceID, err := bson.ObjectIDFromHex(req.ResourceID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "malformed resourceId",
			})
		}
		grant.ResourceID = resourceID
	}

	created, err := h.permissionService.GrantPermission(c.Context(), userID, grant)
	if err != nil {
		grantMutations.WithLabelValues("grant", "failure").Inc()
		return respondServiceError(c, err)
	}
	grantMutations.WithLabelValues("grant", "success").Inc()

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"data": created,
	})
}

func (h *PermissionHandler) RevokePermission(c fiber.Ctx) error {
	userID := middleware.UserID(c)

	grantID, err := bson.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed grant id",
		})
	}

	if err := h.permissionService.RevokePermission(c.Context(), userID, grantID); err != nil {
		grantMutations.WithLabelValues("revoke", "failure").Inc()
		return respondServiceError(c, err)
	}
	grantMutations.WithLabelValues("revoke", "success").Inc()

	return c.JSON(fiber.Map{
		"message": "permission revoked",
	})
}

// Maintenance toggles the Redis-backed maintenance flag, admins only.
func (h *PermissionHandler) Maintenance(c fiber.Ctx) error {
	userID := middleware.UserID(c)

	principal, err := h.principalService.Resolve(c.Context(), userID)
	if err != nil {
		return respondServiceError(c, err)
	}
	if principal.Role != models.RoleAdmin {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "You don't have enough permission",
		})
	}

	log.Printf("User %s toggled system maintenance", userID.Hex())

	current, err := h.redisRepo.GetFlag(c.Context(), "maintenance")
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to read maintenance flag",
		})
	}

	next := !current
	if next {
		err = h.redisRepo.SetFlag(c.Context(), "maintenance", true, 0)
	} else {
		err = h.redisRepo.DeleteKey(c.Context(), "maintenance")
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to update maintenance flag",
		})
	}

	return c.JSON(fiber.Map{
		"maintenance": next,
	})
}
