package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/srgjo27/session_reservation/internal/core/domain"
	"github.com/srgjo27/session_reservation/internal/core/services"
	"github.com/srgjo27/session_reservation/internal/platform/logger"
)

type CheckoutHandler struct {
	checkouts *services.CheckoutService
	finalizer *services.CheckoutFinalizer
	log       *logger.Logger
}

func NewCheckoutHandler(checkouts *services.CheckoutService, finalizer *services.CheckoutFinalizer, log *logger.Logger) *CheckoutHandler {
	return &CheckoutHandler{checkouts: checkouts, finalizer: finalizer, log: log.With("component", "checkout_handler")}
}

type reserveBody struct {
	AttendeeCount int            `json:"attendee_count"`
	AllowWaitlist *bool          `json:"allow_waitlist"`
	Contact       domain.Contact `json:"contact"`
}

// allowWaitlist defaults to true: seats beyond capacity are queued unless
// the caller opts out.
func (b reserveBody) allowWaitlist() bool {
	return b.AllowWaitlist == nil || *b.AllowWaitlist
}

func (h *CheckoutHandler) Reserve(c echo.Context) error {
	sessionID, ok := pathID(c, "sessionID")
	if !ok {
		return badRequest(c, "invalid session id")
	}
	requester, ok := requesterFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
	}

	var body reserveBody
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid json body")
	}

	view, err := h.checkouts.Reserve(c.Request().Context(), services.ReserveRequest{
		SessionID:     sessionID,
		Requester:     requester,
		AttendeeCount: body.AttendeeCount,
		AllowWaitlist: body.allowWaitlist(),
		Contact:       body.Contact,
	})
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, view)
}

func (h *CheckoutHandler) Availability(c echo.Context) error {
	sessionID, ok := pathID(c, "sessionID")
	if !ok {
		return badRequest(c, "invalid session id")
	}
	a, err := h.checkouts.Availability(c.Request().Context(), sessionID)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *CheckoutHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid checkout id")
	}
	view, err := h.checkouts.Get(c.Request().Context(), id)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *CheckoutHandler) Update(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid checkout id")
	}
	var req services.UpdateCheckoutRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json body")
	}
	view, err := h.checkouts.UpdateCheckout(c.Request().Context(), id, req)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *CheckoutHandler) ResetReservation(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid checkout id")
	}
	view, err := h.checkouts.ResetReservationExpiration(c.Request().Context(), id)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *CheckoutHandler) MoveAttendee(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid checkout id")
	}
	attendeeID, ok := pathID(c, "attendeeID")
	if !ok {
		return badRequest(c, "invalid attendee id")
	}
	var body struct {
		MoveTo services.MoveTarget `json:"move_to"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid json body")
	}
	view, err := h.checkouts.UpdateAttendeeWaitlist(c.Request().Context(), id, attendeeID, body.MoveTo)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *CheckoutHandler) ReplaceAttendee(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid checkout id")
	}
	attendeeID, ok := pathID(c, "attendeeID")
	if !ok {
		return badRequest(c, "invalid attendee id")
	}
	var ref domain.IdentityRef
	if err := c.Bind(&ref); err != nil {
		return badRequest(c, "invalid json body")
	}
	view, err := h.checkouts.ReplaceAttendee(c.Request().Context(), id, attendeeID, ref)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *CheckoutHandler) ApplyDiscounts(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid checkout id")
	}
	requester, ok := requesterFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
	}
	var req services.DiscountRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json body")
	}
	view, err := h.checkouts.ApplyDiscounts(c.Request().Context(), id, requester, req)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *CheckoutHandler) Finalize(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid checkout id")
	}
	var payment domain.PaymentResult
	if err := c.Bind(&payment); err != nil {
		return badRequest(c, "invalid json body")
	}
	result, err := h.finalizer.Finalize(c.Request().Context(), id, payment)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *CheckoutHandler) Cancel(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid checkout id")
	}
	if err := h.checkouts.Cancel(c.Request().Context(), id); err != nil {
		return fail(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
