package handler

import (
	"net/http"

	"club-ticketing/internal/dto"
	"club-ticketing/internal/middleware"
	"club-ticketing/internal/model"
	"club-ticketing/internal/service"

	"github.com/labstack/echo/v4"
)

type CartHandler struct {
	cartService service.CartService
}

func NewCartHandler(cartService service.CartService) *CartHandler {
	return &CartHandler{cartService: cartService}
}

func ownerOrFail(c echo.Context) (model.Owner, error) {
	owner, ok := middleware.OwnerFromContext(c)
	if !ok {
		return model.Owner{}, echo.NewHTTPError(http.StatusUnauthorized, "no owner identity")
	}
	return owner, nil
}

func (h *CartHandler) AddTicket(c echo.Context) error {
	owner, err := ownerOrFail(c)
	if err != nil {
		return err
	}

	var req dto.AddTicketRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	cart, err := h.cartService.AddTicket(c.Request().Context(), owner, &req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, cart)
}

func (h *CartHandler) AddMenuItem(c echo.Context) error {
	owner, err := ownerOrFail(c)
	if err != nil {
		return err
	}

	var req dto.AddMenuItemRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	cart, err := h.cartService.AddMenuItem(c.Request().Context(), owner, &req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, cart)
}

func (h *CartHandler) UpdateQuantity(c echo.Context) error {
	owner, err := ownerOrFail(c)
	if err != nil {
		return err
	}

	var req dto.UpdateQuantityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	cart, err := h.cartService.UpdateQuantity(c.Request().Context(), owner, c.Param("itemID"), req.Quantity)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, cart)
}

func (h *CartHandler) Remove(c echo.Context) error {
	owner, err := ownerOrFail(c)
	if err != nil {
		return err
	}

	cart, err := h.cartService.Remove(c.Request().Context(), owner, c.Param("itemID"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, cart)
}

func (h *CartHandler) Clear(c echo.Context) error {
	owner, err := ownerOrFail(c)
	if err != nil {
		return err
	}

	if err := h.cartService.Clear(c.Request().Context(), owner); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *CartHandler) List(c echo.Context) error {
	owner, err := ownerOrFail(c)
	if err != nil {
		return err
	}

	cart, err := h.cartService.List(c.Request().Context(), owner)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, cart)
}
