package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/seatwise/table-allocation/internal/allocator"
	"github.com/seatwise/table-allocation/internal/middleware"
)

// AllocationHandler exposes the allocation engine over HTTP: quote,
// confirm, manual staff flows and hold management.  It owns no
// business logic; every decision is delegated to the allocator and
// its error codes are mapped onto HTTP statuses here.
type AllocationHandler struct {
	svc *allocator.Service
}

// NewAllocationHandler returns a handler bound to the allocator service.
func NewAllocationHandler(svc *allocator.Service) *AllocationHandler {
	return &AllocationHandler{svc: svc}
}

// quoteRequest is the optional body for POST /v1/bookings/:id/quote.
type quoteRequest struct {
	ZoneID string `json:"zone_id"`
}

// Quote runs the quote orchestrator for a booking.  A quote with
// no viable plan is still a 200: the reason field tells the
// client why, and no hold was created.
func (h *AllocationHandler) Quote(c echo.Context) error {
	var req quoteRequest
	if err := c.Bind(&req); err != nil && err != echo.ErrUnsupportedMediaType {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	result, err := h.svc.QuoteTablesForBooking(c.Request().Context(), allocator.QuoteRequest{
		BookingID:   c.Param("id"),
		ZoneID:      req.ZoneID,
		RequestedBy: middleware.ActorID(c),
	})
	if err != nil {
		return writeAllocatorError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// confirmRequest is the body for POST /v1/holds/:id/confirm.
type confirmRequest struct {
	BookingID      string `json:"booking_id"`
	IdempotencyKey string `json:"idempotency_key"`
	TargetStatus   string `json:"target_status"`
}

// Confirm converts a hold into committed assignments.
func (h *AllocationHandler) Confirm(c echo.Context) error {
	var req confirmRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.BookingID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "booking_id is required"})
	}
	rows, err := h.svc.ConfirmHoldAssignment(c.Request().Context(), allocator.ConfirmRequest{
		HoldID:         c.Param("id"),
		BookingID:      req.BookingID,
		IdempotencyKey: req.IdempotencyKey,
		TargetStatus:   req.TargetStatus,
		ActorID:        middleware.ActorID(c),
	})
	if err != nil {
		return writeAllocatorError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"assignments": rows})
}

// assignRequest is the body for POST /v1/bookings/:id/assign.
type assignRequest struct {
	HoldID         string `json:"hold_id"`
	IdempotencyKey string `json:"idempotency_key"`
	TargetStatus   string `json:"target_status"`
}

// Assign is the atomic confirm-and-transition entry point: it
// retries once through a fresh quote when the policy drifted
// under the hold, and rolls back when the post-commit state does
// not line up.
func (h *AllocationHandler) Assign(c echo.Context) error {
	var req assignRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.HoldID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "hold_id is required"})
	}
	rows, err := h.svc.AtomicConfirmAndTransition(c.Request().Context(), allocator.AtomicConfirmRequest{
		BookingID:      c.Param("id"),
		HoldID:         req.HoldID,
		IdempotencyKey: req.IdempotencyKey,
		TargetStatus:   req.TargetStatus,
		ActorID:        middleware.ActorID(c),
	})
	if err != nil {
		return writeAllocatorError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"assignments": rows})
}

// manualRequest is the body for the manual evaluate/hold endpoints.
type manualRequest struct {
	TableIDs         []string `json:"table_ids"`
	RequireAdjacency bool     `json:"require_adjacency"`
}

// ManualEvaluate runs the named checks over a staff-chosen table
// selection without creating anything.
func (h *AllocationHandler) ManualEvaluate(c echo.Context) error {
	var req manualRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	eval, err := h.svc.EvaluateManualSelection(c.Request().Context(), allocator.ManualSelectionRequest{
		BookingID:        c.Param("id"),
		TableIDs:         req.TableIDs,
		RequireAdjacency: req.RequireAdjacency,
		ActorID:          middleware.ActorID(c),
	})
	if err != nil {
		return writeAllocatorError(c, err)
	}
	return c.JSON(http.StatusOK, eval)
}

// ManualHold evaluates a staff selection and creates a hold when
// every check passes.  A failed evaluation is a 200 carrying the
// check list; the client renders it and nothing was persisted.
func (h *AllocationHandler) ManualHold(c echo.Context) error {
	var req manualRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	eval, err := h.svc.CreateManualHold(c.Request().Context(), allocator.ManualSelectionRequest{
		BookingID:        c.Param("id"),
		TableIDs:         req.TableIDs,
		RequireAdjacency: req.RequireAdjacency,
		ActorID:          middleware.ActorID(c),
	})
	if err != nil {
		return writeAllocatorError(c, err)
	}
	status := http.StatusOK
	if eval.Hold != nil {
		status = http.StatusCreated
	}
	return c.JSON(status, eval)
}

// AssignmentContext returns the floor-plan view for a booking:
// tables, live holds, busy intervals, current assignments and the
// context version hash for optimistic refresh.
func (h *AllocationHandler) AssignmentContext(c echo.Context) error {
	result, err := h.svc.ManualAssignmentContext(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeAllocatorError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// writeAllocatorError maps the allocator's error taxonomy onto
// HTTP statuses.  The code and details travel in the body so
// clients can branch without parsing messages.
func writeAllocatorError(c echo.Context, err error) error {
	var ae *allocator.Error
	if !errors.As(err, &ae) {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	status := http.StatusInternalServerError
	switch ae.Code {
	case allocator.CodeInvalidInput:
		status = http.StatusBadRequest
	case allocator.CodeBookingNotFound, allocator.CodeHoldNotFound:
		status = http.StatusNotFound
	case allocator.CodePolicyChanged, allocator.CodeAssignmentConflict:
		status = http.StatusConflict
	case allocator.CodeServiceNotFound, allocator.CodeServiceOverrun,
		allocator.CodeHoldMetadataIncomplete, allocator.CodeHoldEmpty,
		allocator.CodeHoldBookingMismatch, allocator.CodeRPCValidation,
		allocator.CodeAssignmentValidation:
		status = http.StatusUnprocessableEntity
	}
	body := echo.Map{"error": ae.Message, "code": ae.Code}
	if len(ae.Details) > 0 {
		body["details"] = ae.Details
	}
	return c.JSON(status, body)
}
