package serverutils

import (
	"errors"
	"log"

	"care-connect-be/internal/pkg/apperror"

	"github.com/gofiber/fiber/v2"
)

// RetryableData tells clients they may resend the same request.
type RetryableData struct {
	Retryable bool `json:"retryable"`
}

// UpgradeRequiredData drives the pricing modal on the client.
type UpgradeRequiredData struct {
	ShowModalPricing bool `json:"show_modal_pricing"`
}

type ValidationData struct {
	Errors []apperror.FieldError `json:"errors"`
}

// ErrorHandlerMiddleware turns errors returned by handlers into the response
// envelope. NotFound and Forbidden share one response, so a non-party learns
// nothing about whether a connection id exists.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}
		return WriteError(ctx, err)
	}
}

func WriteError(ctx *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return ctx.Status(fe.Code).JSON(ErrorResponse(fe.Code, fe.Message))
	}

	var verr *apperror.ValidationError
	if errors.As(err, &verr) {
		return ctx.Status(fiber.StatusBadRequest).
			JSON(ErrorResponseWithData(fiber.StatusBadRequest, verr.Error(), ValidationData{Errors: verr.Errors}))
	}

	status, message := statusFor(err)
	switch {
	case errors.Is(err, apperror.ErrUpgradeRequired):
		return ctx.Status(status).JSON(ErrorResponseWithData(status, message, UpgradeRequiredData{ShowModalPricing: true}))
	case apperror.IsRetryable(err):
		if errors.Is(err, apperror.ErrStorage) {
			log.Printf("[ERROR] storage failure on %s %s: %v", ctx.Method(), ctx.Path(), err)
		}
		return ctx.Status(status).JSON(ErrorResponseWithData(status, message, RetryableData{Retryable: true}))
	case status == fiber.StatusInternalServerError:
		log.Printf("[ERROR] unhandled error on %s %s: %v", ctx.Method(), ctx.Path(), err)
	}
	return ctx.Status(status).JSON(ErrorResponse(status, message))
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrNotFound), errors.Is(err, apperror.ErrForbidden):
		return fiber.StatusNotFound, "not found"
	case errors.Is(err, apperror.ErrValidation):
		return fiber.StatusBadRequest, err.Error()
	case errors.Is(err, apperror.ErrInvalidTransition), errors.Is(err, apperror.ErrInvalidState):
		return fiber.StatusConflict, err.Error()
	case errors.Is(err, apperror.ErrAlreadyExists):
		return fiber.StatusConflict, "an open connection with this profile already exists"
	case errors.Is(err, apperror.ErrConcurrencyConflict):
		return fiber.StatusConflict, "connection was changed by someone else, please try again"
	case errors.Is(err, apperror.ErrUpgradeRequired):
		return fiber.StatusPaymentRequired, "upgrade your membership to continue"
	case errors.Is(err, apperror.ErrTimeout):
		return fiber.StatusGatewayTimeout, "the request timed out, please retry"
	case errors.Is(err, apperror.ErrStorage):
		return fiber.StatusServiceUnavailable, "service temporarily unavailable, please retry"
	}
	return fiber.StatusInternalServerError, "internal server error"
}
