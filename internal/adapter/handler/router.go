package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/srgjo27/session_reservation/internal/core/domain"
)

func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Register mounts every route on e. All /v1 routes require a bearer token;
// /v1/admin additionally requires the waitlist_admin capability.
func Register(e *echo.Echo, jwtSecret string, checkouts *CheckoutHandler, admin *AdminHandler) {
	e.GET("/healthz", Health)

	v1 := e.Group("/v1", JWTAuth(jwtSecret))

	v1.POST("/sessions/:sessionID/checkouts", checkouts.Reserve)
	v1.GET("/sessions/:sessionID/availability", checkouts.Availability)

	v1.GET("/checkouts/:id", checkouts.Get)
	v1.PUT("/checkouts/:id", checkouts.Update)
	v1.DELETE("/checkouts/:id", checkouts.Cancel)
	v1.POST("/checkouts/:id/reservation/reset", checkouts.ResetReservation)
	v1.PATCH("/checkouts/:id/attendees/:attendeeID/waitlist", checkouts.MoveAttendee)
	v1.PUT("/checkouts/:id/attendees/:attendeeID", checkouts.ReplaceAttendee)
	v1.PUT("/checkouts/:id/discounts", checkouts.ApplyDiscounts)
	v1.POST("/checkouts/:id/finalize", checkouts.Finalize)

	adm := v1.Group("/admin", RequireCapability(domain.CapabilityWaitlistAdmin))
	adm.GET("/sessions/:sessionID/waitlist", admin.ListWaitlist)
	adm.GET("/sessions/:sessionID/enrollments", admin.ListEnrollments)
	adm.POST("/sessions/:sessionID/waitlist/promote", admin.Promote)
	adm.PATCH("/waitlist/:entryID", admin.MoveEntry)
	adm.DELETE("/waitlist/:entryID", admin.RemoveEntry)
	adm.POST("/waitlist/:entryID/enroll", admin.EnrollEntry)
	adm.POST("/enrollments/:enrollmentID/waitlist", admin.DemoteEnrollment)
	adm.PUT("/enrollments/:enrollmentID/attendee", admin.ReplaceEnrollmentAttendee)
}
