package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/srgjo27/session_reservation/internal/core/domain"
	"github.com/srgjo27/session_reservation/internal/core/services"
	"github.com/srgjo27/session_reservation/internal/platform/logger"
)

// AdminHandler serves waitlist and enrollment management. Routes are
// registered behind the waitlist_admin capability.
type AdminHandler struct {
	waitlist  *services.WaitlistManager
	finalizer *services.CheckoutFinalizer
	log       *logger.Logger
}

func NewAdminHandler(waitlist *services.WaitlistManager, finalizer *services.CheckoutFinalizer, log *logger.Logger) *AdminHandler {
	return &AdminHandler{waitlist: waitlist, finalizer: finalizer, log: log.With("component", "admin_handler")}
}

func (h *AdminHandler) ListWaitlist(c echo.Context) error {
	sessionID, ok := pathID(c, "sessionID")
	if !ok {
		return badRequest(c, "invalid session id")
	}
	entries, err := h.waitlist.List(c.Request().Context(), sessionID)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, nonNil(entries))
}

func (h *AdminHandler) ListEnrollments(c echo.Context) error {
	sessionID, ok := pathID(c, "sessionID")
	if !ok {
		return badRequest(c, "invalid session id")
	}
	enrollments, err := h.finalizer.Enrollments(c.Request().Context(), sessionID)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, nonNil(enrollments))
}

func (h *AdminHandler) Promote(c echo.Context) error {
	sessionID, ok := pathID(c, "sessionID")
	if !ok {
		return badRequest(c, "invalid session id")
	}
	body := struct {
		Seats int `json:"seats"`
	}{Seats: 1}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid json body")
	}
	promoted, err := h.waitlist.Promote(c.Request().Context(), sessionID, body.Seats)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, nonNil(promoted))
}

func (h *AdminHandler) MoveEntry(c echo.Context) error {
	entryID, ok := pathID(c, "entryID")
	if !ok {
		return badRequest(c, "invalid entry id")
	}
	var body struct {
		Position int `json:"position"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid json body")
	}
	entries, err := h.waitlist.Move(c.Request().Context(), entryID, body.Position)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *AdminHandler) RemoveEntry(c echo.Context) error {
	entryID, ok := pathID(c, "entryID")
	if !ok {
		return badRequest(c, "invalid entry id")
	}
	if err := h.waitlist.Remove(c.Request().Context(), entryID); err != nil {
		return fail(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHandler) EnrollEntry(c echo.Context) error {
	entryID, ok := pathID(c, "entryID")
	if !ok {
		return badRequest(c, "invalid entry id")
	}
	promoted, err := h.waitlist.Enroll(c.Request().Context(), entryID)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, promoted)
}

func (h *AdminHandler) DemoteEnrollment(c echo.Context) error {
	enrollmentID, ok := pathID(c, "enrollmentID")
	if !ok {
		return badRequest(c, "invalid enrollment id")
	}
	entry, err := h.waitlist.DemoteEnrollment(c.Request().Context(), enrollmentID)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *AdminHandler) ReplaceEnrollmentAttendee(c echo.Context) error {
	enrollmentID, ok := pathID(c, "enrollmentID")
	if !ok {
		return badRequest(c, "invalid enrollment id")
	}
	var ref domain.IdentityRef
	if err := c.Bind(&ref); err != nil {
		return badRequest(c, "invalid json body")
	}
	enrollment, err := h.finalizer.ReplaceEnrollmentAttendee(c.Request().Context(), enrollmentID, ref)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, enrollment)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
