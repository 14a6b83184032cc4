package controller

import (
	"care-connect-be/internal/dto"
	"care-connect-be/internal/pkg/serverutils"
	"care-connect-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IConnectionController interface {
	RegisterRoutes(r fiber.Router)
	Create(ctx *fiber.Ctx) error
	List(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Version(ctx *fiber.Ctx) error
	Respond(ctx *fiber.Ctx) error
	Withdraw(ctx *fiber.Ctx) error
	End(ctx *fiber.Ctx) error
	Hide(ctx *fiber.Ctx) error
	SendMessage(ctx *fiber.Ctx) error
	RequestNextStep(ctx *fiber.Ctx) error
	CancelNextStep(ctx *fiber.Ctx) error
	Entitlement(ctx *fiber.Ctx) error
}

type connectionController struct {
	service service.IConnectionService
	auth    fiber.Handler
}

func NewConnectionController(service service.IConnectionService, auth fiber.Handler) IConnectionController {
	return &connectionController{service: service, auth: auth}
}

func (c *connectionController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/connection/v1")
	h.Use(c.auth)
	h.Get("/entitlement", c.Entitlement)
	h.Get("", c.List)
	h.Post("", c.Create)
	h.Get("/:id", c.Show)
	h.Get("/:id/version", c.Version)
	h.Post("/:id/respond", c.Respond)
	h.Post("/:id/withdraw", c.Withdraw)
	h.Post("/:id/end", c.End)
	h.Post("/:id/hide", c.Hide)
	h.Post("/:id/messages", c.SendMessage)
	h.Post("/:id/next-step", c.RequestNextStep)
	h.Delete("/:id/next-step", c.CancelNextStep)
}

// caller returns the authenticated profile and the :id path parameter.
// A malformed id is reported as not found.
func caller(ctx *fiber.Ctx) (uuid.UUID, uuid.UUID, error) {
	profileId, err := serverutils.ProfileId(ctx)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, fiber.NewError(fiber.StatusNotFound, "not found")
	}
	return profileId, id, nil
}

func parseBody(ctx *fiber.Ctx, req interface{}) error {
	if err := ctx.BodyParser(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	return serverutils.ValidateRequest(req)
}

func (c *connectionController) Create(ctx *fiber.Ctx) error {
	profileId, err := serverutils.ProfileId(ctx)
	if err != nil {
		return err
	}

	var req dto.CreateConnectionRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}

	res, err := c.service.Create(ctx.Context(), profileId, &req)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success create connection", res))
}

func (c *connectionController) List(ctx *fiber.Ctx) error {
	profileId, err := serverutils.ProfileId(ctx)
	if err != nil {
		return err
	}

	var query dto.ListConnectionsQuery
	if err := ctx.QueryParser(&query); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid query parameters")
	}
	if err := serverutils.ValidateRequest(query); err != nil {
		return err
	}

	res, err := c.service.List(ctx.Context(), profileId, &query)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get connections", res))
}

func (c *connectionController) Show(ctx *fiber.Ctx) error {
	profileId, id, err := caller(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.Get(ctx.Context(), profileId, id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success show connection", res))
}

func (c *connectionController) Version(ctx *fiber.Ctx) error {
	profileId, id, err := caller(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.GetVersion(ctx.Context(), profileId, id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get connection version", res))
}

func (c *connectionController) Respond(ctx *fiber.Ctx) error {
	profileId, id, err := caller(ctx)
	if err != nil {
		return err
	}

	var req dto.RespondConnectionRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}

	res, err := c.service.Respond(ctx.Context(), profileId, id, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success respond to connection", res))
}

func (c *connectionController) Withdraw(ctx *fiber.Ctx) error {
	profileId, id, err := caller(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.Withdraw(ctx.Context(), profileId, id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success withdraw connection", res))
}

func (c *connectionController) End(ctx *fiber.Ctx) error {
	profileId, id, err := caller(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.End(ctx.Context(), profileId, id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success end connection", res))
}

func (c *connectionController) Hide(ctx *fiber.Ctx) error {
	profileId, id, err := caller(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.Hide(ctx.Context(), profileId, id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success hide connection", res))
}

func (c *connectionController) SendMessage(ctx *fiber.Ctx) error {
	profileId, id, err := caller(ctx)
	if err != nil {
		return err
	}

	var req dto.SendMessageRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}

	res, err := c.service.SendMessage(ctx.Context(), profileId, id, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success send message", res))
}

func (c *connectionController) RequestNextStep(ctx *fiber.Ctx) error {
	profileId, id, err := caller(ctx)
	if err != nil {
		return err
	}

	var req dto.RequestNextStepRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}

	res, err := c.service.RequestNextStep(ctx.Context(), profileId, id, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success request next step", res))
}

func (c *connectionController) CancelNextStep(ctx *fiber.Ctx) error {
	profileId, id, err := caller(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.CancelNextStep(ctx.Context(), profileId, id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success cancel next step", res))
}

func (c *connectionController) Entitlement(ctx *fiber.Ctx) error {
	profileId, err := serverutils.ProfileId(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.GetEntitlement(ctx.Context(), profileId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get entitlement", res))
}
