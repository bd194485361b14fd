package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/resource-queue/internal/api/dto"
	"github.com/spec-kit/resource-queue/internal/domain"
	"github.com/spec-kit/resource-queue/internal/service"
	apperrors "github.com/spec-kit/resource-queue/pkg/util"
)

// ResourcesHandler exposes resources and ticket transitions.
type ResourcesHandler struct {
	queue *service.QueueService
}

// NewResourcesHandler constructs handler.
func NewResourcesHandler(queue *service.QueueService) *ResourcesHandler {
	return &ResourcesHandler{queue: queue}
}

// Create POST /resources.
func (h *ResourcesHandler) Create(c *fiber.Ctx) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.CreateResourceRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	card, err := h.queue.CreateResource(c.UserContext(), actor, req.ToCreateResourceInput())
	if err != nil {
		return err
	}
	return ok(c, http.StatusCreated, card)
}

// Get GET /resources/:id.
func (h *ResourcesHandler) Get(c *fiber.Ctx) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	card, err := h.queue.GetResourceCard(c.UserContext(), actor, c.Params("id"), optionalQuery(c, "userId"))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, card)
}

// Transition POST /resources/:id/transitions.
func (h *ResourcesHandler) Transition(c *fiber.Ctx) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.TargetStatus == "" {
		return apperrors.NewValidationError("targetStatus required", nil)
	}
	card, err := h.queue.RequestTransition(c.UserContext(), actor, service.TransitionRequest{
		ResourceID:   c.Params("id"),
		TargetStatus: req.TargetStatus,
		TargetUserID: req.UserID,
	})
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, card)
}

// CheckTransition GET /resources/:id/transitions/:status.
func (h *ResourcesHandler) CheckTransition(c *fiber.Ctx) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	target := domain.StatusCode(c.Params("status"))
	decision, err := h.queue.CheckTransition(c.UserContext(), actor, c.Params("id"), target, optionalQuery(c, "userId"))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, dto.NewTransitionDecisionResponse(decision))
}

// AddUsers POST /resources/:id/users.
func (h *ResourcesHandler) AddUsers(c *fiber.Ctx) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.AddResourceUsersRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if len(req.Users) == 0 {
		return apperrors.NewValidationError("users required", nil)
	}
	card, err := h.queue.AddResourceUsers(c.UserContext(), actor, c.Params("id"), req.ToResourceUsers())
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, card)
}

// RemoveUsers DELETE /resources/:id/users.
func (h *ResourcesHandler) RemoveUsers(c *fiber.Ctx) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.RemoveResourceUsersRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	outcome, err := h.queue.RemoveResourceUsers(c.UserContext(), actor, c.Params("id"), req.UserIDs)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, dto.NewCleanupResponse(*outcome))
}
