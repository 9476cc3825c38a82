package handlers

import (
	"strconv"

	"permission_service/internal/middleware"
	"permission_service/internal/models"
	"permission_service/internal/service"

	"github.com/gofiber/fiber/v3"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type RuleHandler struct {
	ruleService *service.RuleService
	jwtSecret   string
}

func NewRuleHandler(ruleService *service.RuleService, jwtSecret string) *RuleHandler {
	return &RuleHandler{
		ruleService: ruleService,
		jwtSecret:   jwtSecret,
	}
}

func (h *RuleHandler) RegisterRoutes(app *fiber.App) {
	group := app.Group("/protected/permission-rules", middleware.RequireIdentity(h.jwtSecret))

	group.Post("/", h.CreateRule)
	group.Get("/", h.ListRules)
	group.Get("/:id", h.GetRule)
	group.Delete("/:id", h.DeleteRule)
	group.Post("/:id/apply", h.ApplyRule)
}

type createRuleRequest struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Permissions []models.GrantSpec `json:"permissions"`
}

func (h *RuleHandler) CreateRule(c fiber.Ctx) error {
	userID := middleware.UserID(c)

	var req createRuleRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	rule := &models.PermissionRule{
		Name:        req.Name,
		Description: req.Description,
		Permissions: req.Permissions,
	}

	created, err := h.ruleService.CreateRule(c.Context(), userID, rule)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"data": created,
	})
}

func (h *RuleHandler) ListRules(c fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "50"))

	rules, err := h.ruleService.ListRules(c.Context(), page, limit)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"data": rules,
	})
}

func (h *RuleHandler) GetRule(c fiber.Ctx) error {
	ruleID, err := bson.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed rule id",
		})
	}

	rule, err := h.ruleService.GetRule(c.Context(), ruleID)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"data": rule,
	})
}

func (h *RuleHandler) DeleteRule(c fiber.Ctx) error {
	ruleID, err := bson.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed rule id",
		})
	}

	if err := h.ruleService.DeleteRule(c.Context(), ruleID); err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "rule deleted",
	})
}

type applyRuleRequest struct {
	ResourceType models.ResourceType `json:"resourceType"`
	ResourceID   string              `json:"resourceId"`
}

func (h *RuleHandler) ApplyRule(c fiber.Ctx) error {
	userID := middleware.UserID(c)

	ruleID, err := bson.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "malformed rule id",
		})
	}

	var req applyRuleRequest
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

	grants, err := h.ruleService.ApplyRule(c.Context(), userID, ruleID, req.ResourceType, resourceID)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"data": fiber.Map{
			"createdGrants": len(grants),
			"grants":        grants,
		},
	})
}
