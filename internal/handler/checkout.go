package handler

import (
	"net/http"

	"club-ticketing/internal/dto"
	"club-ticketing/internal/service"

	"github.com/labstack/echo/v4"
)

type CheckoutHandler struct {
	checkoutService service.CheckoutService
}

func NewCheckoutHandler(checkoutService service.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{checkoutService: checkoutService}
}

func (h *CheckoutHandler) Initiate(c echo.Context) error {
	owner, err := ownerOrFail(c)
	if err != nil {
		return err
	}

	var req dto.CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	resp, err := h.checkoutService.Initiate(c.Request().Context(), owner, &req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *CheckoutHandler) Confirm(c echo.Context) error {
	owner, err := ownerOrFail(c)
	if err != nil {
		return err
	}

	resp, err := h.checkoutService.Confirm(c.Request().Context(), owner, c.Param("transactionID"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *CheckoutHandler) Cancel(c echo.Context) error {
	owner, err := ownerOrFail(c)
	if err != nil {
		return err
	}

	if err := h.checkoutService.Cancel(c.Request().Context(), owner, c.Param("transactionID")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
