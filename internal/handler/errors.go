package handler

import (
	"errors"
	"log"
	"net/http"

	"club-ticketing/internal/dto"
	"club-ticketing/internal/service"

	"github.com/labstack/echo/v4"
)

// httpStatusLocked is echo's missing 423
const httpStatusLocked = 423

// writeError maps the service error taxonomy onto the HTTP surface.
func writeError(c echo.Context, err error) error {
	var (
		validationErr  *service.ValidationError
		ownershipErr   *service.OwnershipError
		consistencyErr *service.ConsistencyError
		inventoryErr   *service.InventoryExhaustedError
		lockedErr      *service.LockedError
		pricingErr     *service.PricingUnavailableError
		notFoundErr    *service.NotFoundError
		declinedErr    *service.PaymentDeclinedError
		gatewayErr     *service.GatewayCommunicationError
		conflictErr    *service.ConflictError
		idempotencyErr *service.IdempotencyViolationError
	)

	switch {
	case errors.As(err, &inventoryErr):
		remaining := inventoryErr.Remaining
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: inventoryErr.Error(), Remaining: &remaining})
	case errors.As(err, &validationErr), errors.As(err, &consistencyErr), errors.As(err, &pricingErr):
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	case errors.As(err, &ownershipErr):
		return c.JSON(http.StatusForbidden, dto.ErrorResponse{Error: err.Error()})
	case errors.As(err, &notFoundErr):
		return c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
	case errors.As(err, &lockedErr):
		return c.JSON(httpStatusLocked, dto.ErrorResponse{Error: err.Error()})
	case errors.As(err, &conflictErr):
		return c.JSON(http.StatusConflict, dto.ErrorResponse{Error: err.Error()})
	case errors.As(err, &declinedErr):
		return c.JSON(http.StatusPaymentRequired, dto.ErrorResponse{Error: err.Error()})
	case errors.As(err, &gatewayErr):
		return c.JSON(http.StatusBadGateway, dto.ErrorResponse{Error: "payment could not be verified, please retry"})
	case errors.As(err, &idempotencyErr):
		log.Printf("idempotency violation: %v", err)
		return c.JSON(http.StatusConflict, dto.ErrorResponse{Error: "duplicate processing attempt"})
	default:
		log.Printf("unexpected error: %v", err)
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal error"})
	}
}
