package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/resource-queue/internal/api/dto"
	"github.com/spec-kit/resource-queue/internal/service"
	apperrors "github.com/spec-kit/resource-queue/pkg/util"
)

// UsersHandler exposes account endpoints.
type UsersHandler struct {
	users *service.UserService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(users *service.UserService) *UsersHandler {
	return &UsersHandler{users: users}
}

// Me GET /users/me.
func (h *UsersHandler) Me(c *fiber.Ctx) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	user, err := h.users.CurrentUser(c.UserContext(), actor, optionalQuery(c, "userId"))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, dto.NewUserResponse(user))
}

// Search GET /users/search.
func (h *UsersHandler) Search(c *fiber.Ctx) error {
	if _, err := currentUser(c); err != nil {
		return err
	}
	users, err := h.users.SearchUsers(c.UserContext(), c.Query("q"), c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, users)
}

// Delete DELETE /users/me.
func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.DeleteUserRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	report, err := h.users.DeleteUser(c.UserContext(), actor, req.UserID, req.DeleteAll)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, dto.NewDeletionResponse(report))
}

// AddSubscription POST /users/me/subscriptions.
func (h *UsersHandler) AddSubscription(c *fiber.Ctx) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.SubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.users.AddSubscription(c.UserContext(), actor, req.ToSubscription()); err != nil {
		return err
	}
	return ok(c, http.StatusCreated, fiber.Map{"endpoint": req.Endpoint})
}

// Notifications GET /notifications.
func (h *UsersHandler) Notifications(c *fiber.Ctx) error {
	actor, err := currentUser(c)
	if err != nil {
		return err
	}
	list, err := h.users.ListNotifications(c.UserContext(), actor)
	if err != nil {
		return err
	}
	if list == nil {
		return ok(c, http.StatusOK, []any{})
	}
	return ok(c, http.StatusOK, list)
}

// Create POST /users.
func (h *UsersHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	user, err := h.users.CreateUser(c.UserContext(), req.ToCreateUserInput())
	if err != nil {
		return err
	}
	return ok(c, http.StatusCreated, dto.NewUserResponse(user))
}

// IssueToken POST /users/:id/tokens.
func (h *UsersHandler) IssueToken(c *fiber.Ctx) error {
	token, session, err := h.users.IssueToken(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return ok(c, http.StatusCreated, dto.NewTokenResponse(token, session))
}
