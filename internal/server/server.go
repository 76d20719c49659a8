package server

import (
	"club-ticketing/internal/handler"
	ownermw "club-ticketing/internal/middleware"
	"club-ticketing/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type Server struct {
	echo            *echo.Echo
	cartHandler     *handler.CartHandler
	checkoutHandler *handler.CheckoutHandler
}

func NewServer(cartService service.CartService, checkoutService service.CheckoutService, jwtSecret string) *Server {
	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:            e,
		cartHandler:     handler.NewCartHandler(cartService),
		checkoutHandler: handler.NewCheckoutHandler(checkoutService),
	}

	s.setupRoutes(jwtSecret)
	return s
}

func (s *Server) setupRoutes(jwtSecret string) {
	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	owned := api.Group("", ownermw.OwnerMiddleware(jwtSecret))

	// -------- cart --------
	cart := owned.Group("/cart")
	cart.GET("", s.cartHandler.List)
	cart.POST("/tickets", s.cartHandler.AddTicket)
	cart.POST("/menu-items", s.cartHandler.AddMenuItem)
	cart.PATCH("/items/:itemID", s.cartHandler.UpdateQuantity)
	cart.DELETE("/items/:itemID", s.cartHandler.Remove)
	cart.DELETE("", s.cartHandler.Clear)

	// -------- checkout --------
	checkout := owned.Group("/checkout")
	checkout.POST("", s.checkoutHandler.Initiate)
	checkout.POST("/:transactionID/confirm", s.checkoutHandler.Confirm)
	checkout.POST("/:transactionID/cancel", s.checkoutHandler.Cancel)
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown() error {
	return s.echo.Close()
}
