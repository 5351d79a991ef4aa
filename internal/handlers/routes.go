package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handlers bundles every handler the server exposes
type Handlers struct {
	Auth        *AuthHandler
	Payments    *PaymentHandler
	Students    *StudentHandler
	Rooms       *RoomHandler
	Fees        *FeeHandler
	Leaves      *LeaveHandler
	Complaints  *ComplaintHandler
	Members     *MemberHandler
	Mess        *MessHandler
	Dashboard   *DashboardHandler
	Events      *EventsHandler
	Preferences *StudentPreferenceHandler
}

// RegisterRoutes wires the public payment endpoints, the resident endpoints
// and the admin API. limit is applied to public endpoints that write.
func RegisterRoutes(e *echo.Echo, h Handlers, admin, limit echo.MiddlewareFunc) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})

	// Payment routes
	e.POST("/create-payment", h.Payments.CreatePayment, limit)
	e.POST("/verify-payment", h.Payments.VerifyPayment, limit)
	e.POST("/stripe/webhook", h.Payments.StripeWebhook)

	// Auth routes
	e.POST("/auth/login", h.Auth.HandleLogin, limit)
	e.POST("/auth/logout", h.Auth.HandleLogout)

	// Resident routes
	public := e.Group("/api")
	public.POST("/leave-requests", h.Leaves.SubmitLeaveRequest, limit)
	public.POST("/leave-requests/:id/verify-otp", h.Leaves.VerifyParentOTP, limit)
	public.POST("/complaints", h.Complaints.CreateComplaint, limit)
	public.GET("/mess-menu", h.Mess.GetMenu)

	// Change stream
	e.GET("/events", h.Events.Stream, admin)

	// Protected routes
	api := e.Group("/api", admin)
	api.GET("/me", h.Auth.Me)
	api.GET("/dashboard", h.Dashboard.Dashboard)

	api.GET("/students", h.Students.ListStudents)
	api.POST("/students", h.Students.CreateStudent)
	api.GET("/students/:id", h.Students.GetStudent)
	api.PUT("/students/:id", h.Students.UpdateStudent)
	api.DELETE("/students/:id", h.Students.DeleteStudent)
	api.POST("/students/:id/room", h.Students.AllocateRoom)
	api.DELETE("/students/:id/room", h.Students.ReleaseRoom)
	api.GET("/students/:id/mess-bills", h.Fees.GetMessBills)
	api.GET("/students/:id/preference", h.Preferences.GetStudentPreference)
	api.PUT("/students/:id/preference", h.Preferences.UpdateStudentPreference)

	api.GET("/rooms", h.Rooms.ListRooms)
	api.POST("/rooms", h.Rooms.CreateRoom)
	api.PUT("/rooms/:id", h.Rooms.UpdateRoom)
	api.DELETE("/rooms/:id", h.Rooms.DeleteRoom)

	api.GET("/fees", h.Fees.ListFees)
	api.GET("/fees/stats", h.Fees.GetFeeStats)
	api.POST("/fees", h.Fees.CreateFee)
	api.POST("/fees/:id/mark-paid", h.Fees.MarkFeePaid)
	api.DELETE("/fees/:id", h.Fees.DeleteFee)

	api.GET("/leave-requests", h.Leaves.ListLeaveRequests)
	api.POST("/leave-requests/:id/approve", h.Leaves.ApproveLeaveRequest)
	api.POST("/leave-requests/:id/reject", h.Leaves.RejectLeaveRequest)

	api.GET("/complaints", h.Complaints.ListComplaints)
	api.PUT("/complaints/:id/status", h.Complaints.UpdateComplaintStatus)
	api.DELETE("/complaints/:id", h.Complaints.DeleteComplaint)

	api.GET("/members", h.Members.ListMembers)
	api.POST("/members", h.Members.StoreMember)
	api.PUT("/members/:id", h.Members.UpdateMember)
	api.DELETE("/members/:id", h.Members.DeleteMember)

	api.PUT("/mess-menu/:day", h.Mess.UpsertMenuDay)
}
