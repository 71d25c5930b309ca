package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/seatwise/table-allocation/internal/handler"    // handlers that expose the allocation engine
	"github.com/seatwise/table-allocation/internal/middleware" // middleware for JWT authentication and role enforcement
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check, used by
// load balancers and monitoring systems.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAllocation registers the table-allocation endpoints.  Every route
// requires a valid access token; quoting and confirmation are open to both
// staff and automated booking channels, while the manual floor-plan flows
// are restricted to staff roles.
func RegisterAllocation(e *echo.Echo, h *handler.AllocationHandler, jwtSecret string) {
	// All allocation routes live under /v1 behind JWT authentication.
	v1 := e.Group("/v1")
	v1.Use(middleware.JWTAuth(jwtSecret))
	v1.Use(middleware.RequireRole("OWNER", "STAFF", "CHANNEL"))

	// Quote the best available plan for a booking and soft-lock it.
	v1.POST("/bookings/:id/quote", h.Quote)
	// Convert a hold into committed assignments.
	v1.POST("/holds/:id/confirm", h.Confirm)
	// Atomic confirm-and-transition with drift retry and rollback.
	v1.POST("/bookings/:id/assign", h.Assign)

	// Staff-driven manual selection flows.
	staff := e.Group("/v1")
	staff.Use(middleware.JWTAuth(jwtSecret))
	staff.Use(middleware.RequireRole("OWNER", "STAFF"))
	staff.POST("/bookings/:id/manual/evaluate", h.ManualEvaluate)
	staff.POST("/bookings/:id/manual/hold", h.ManualHold)
	staff.GET("/bookings/:id/assignment-context", h.AssignmentContext)
}
