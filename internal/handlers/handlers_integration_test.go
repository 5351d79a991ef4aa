package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/labstack/echo/v4"
	"github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"hostel_app/internal/middleware"
	"hostel_app/internal/models"
	"hostel_app/internal/services"
	"hostel_app/internal/testutil"
)

type staticVerifier struct {
	event *stripe.Event
}

func (v staticVerifier) ConstructEvent([]byte, string) (*stripe.Event, error) {
	return v.event, nil
}

type apiFixture struct {
	db  *gorm.DB
	e   *echo.Echo
	hub *services.EventHub
}

func newAPIFixture(t *testing.T, verifier WebhookVerifier) *apiFixture {
	c := qt.New(t)
	dsn := testutil.Postgres(t)
	logger := zap.NewNop()

	db, err := services.InitDB(dsn, true, logger)
	c.Assert(err, qt.IsNil)
	c.Assert(services.AutoMigrate(db, logger), qt.IsNil)
	c.Assert(services.SeedMessMenu(db), qt.IsNil)

	hub := services.NewEventHub(logger)
	rooms := services.NewRoomService(db)
	payments := services.NewPaymentService(services.NewGormSettlementStore(db), nil, services.NewLockManager(), hub,
		services.PaymentConfig{DuplicateWindow: 10 * time.Minute}, logger)

	e := echo.New()
	e.HTTPErrorHandler = middleware.JSONErrorHandler(logger)
	noop := func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	RegisterRoutes(e, Handlers{
		Auth:        NewAuthHandler(nil, false),
		Payments:    NewPaymentHandler(payments, verifier, db, logger),
		Students:    NewStudentHandler(db, rooms, hub, logger),
		Rooms:       NewRoomHandler(db, rooms, hub, logger),
		Fees:        NewFeeHandler(db, hub, logger),
		Leaves:      NewLeaveHandler(db, hub, logger),
		Complaints:  NewComplaintHandler(db, hub, logger),
		Members:     NewMemberHandler(db, hub, logger),
		Mess:        NewMessHandler(db, hub, logger),
		Dashboard:   NewDashboardHandler(db, nil, logger),
		Events:      NewEventsHandler(hub, logger),
		Preferences: NewStudentPreferenceHandler(db, logger),
	}, noop, noop)

	return &apiFixture{db: db, e: e, hub: hub}
}

func checkoutEvent(id, sessionID, paymentStatus string) *stripe.Event {
	raw := fmt.Sprintf(`{"id":%q,"object":"checkout.session","payment_status":%q,"amount_total":50000,"metadata":{"student_email":"web@example.com","student_name":"Web Payer","fee_amount":"500","fee_type":"hostel_fee","month":"2024-03"}}`,
		sessionID, paymentStatus)
	return &stripe.Event{
		ID:   id,
		Type: stripe.EventTypeCheckoutSessionCompleted,
		Data: &stripe.EventData{Raw: json.RawMessage(raw)},
	}
}

func TestStripeWebhookSettlesOncePerEvent(t *testing.T) {
	c := qt.New(t)
	f := newAPIFixture(t, staticVerifier{event: checkoutEvent("evt_1", "cs_hook", "paid")})
	headers := map[string]string{"Stripe-Signature": "t=1,v1=ok"}

	for i := 0; i < 2; i++ {
		rec := doJSON(f.e, http.MethodPost, "/stripe/webhook", `{}`, headers)
		c.Assert(rec.Code, qt.Equals, http.StatusOK)
	}

	var fees []models.Fee
	c.Assert(f.db.Preload("Student").Find(&fees).Error, qt.IsNil)
	c.Assert(fees, qt.HasLen, 1)
	c.Assert(*fees[0].PaymentSessionID, qt.Equals, "cs_hook")
	c.Assert(fees[0].Student.Email, qt.Equals, "web@example.com")

	var history models.PaymentCallbackHistory
	c.Assert(f.db.First(&history, "event_id = ?", "evt_1").Error, qt.IsNil)
	c.Assert(history.ProcessedAt, qt.IsNotNil)
	c.Assert(history.ProcessingError, qt.Equals, "")
	c.Assert(history.SessionID, qt.Equals, "cs_hook")
}

func TestStripeWebhookUnpaidSessionWritesNoFee(t *testing.T) {
	c := qt.New(t)
	f := newAPIFixture(t, staticVerifier{event: checkoutEvent("evt_2", "cs_unpaid", "unpaid")})

	rec := doJSON(f.e, http.MethodPost, "/stripe/webhook", `{}`, map[string]string{"Stripe-Signature": "t=1,v1=ok"})
	c.Assert(rec.Code, qt.Equals, http.StatusOK)

	var fees, students int64
	c.Assert(f.db.Model(&models.Fee{}).Count(&fees).Error, qt.IsNil)
	c.Assert(f.db.Model(&models.Student{}).Count(&students).Error, qt.IsNil)
	c.Assert(fees, qt.Equals, int64(0))
	c.Assert(students, qt.Equals, int64(0))

	var history models.PaymentCallbackHistory
	c.Assert(f.db.First(&history, "event_id = ?", "evt_2").Error, qt.IsNil)
	c.Assert(history.ProcessingError, qt.Contains, "Payment not completed")
}

func TestStudentRoomAndFeeAPI(t *testing.T) {
	c := qt.New(t)
	f := newAPIFixture(t, nil)
	events, unsubscribe := f.hub.Subscribe(16)
	defer unsubscribe()

	rec := doJSON(f.e, http.MethodPost, "/api/students", `{"name":"Asha","email":"asha@example.com","course":"B.Sc","year":2}`, nil)
	c.Assert(rec.Code, qt.Equals, http.StatusCreated)
	student := decodeBody(c, rec)
	studentID := student["id"].(string)
	c.Assert((<-events).Resource, qt.Equals, services.ResourceStudents)

	rec = doJSON(f.e, http.MethodPost, "/api/students", `{"name":"Other","email":"asha@example.com"}`, nil)
	c.Assert(rec.Code, qt.Equals, http.StatusConflict)
	c.Assert(decodeBody(c, rec)["success"], qt.Equals, false)

	rec = doJSON(f.e, http.MethodPost, "/api/students", `{"name":"","email":"bad"}`, nil)
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
	c.Assert(decodeBody(c, rec)["details"], qt.DeepEquals, map[string]interface{}{"Name": "required", "Email": "email"})

	rec = doJSON(f.e, http.MethodPost, "/api/rooms", `{"room_number":101,"capacity":1,"floor":1}`, nil)
	c.Assert(rec.Code, qt.Equals, http.StatusCreated)

	rec = doJSON(f.e, http.MethodPost, "/api/students/"+studentID+"/room", `{"room_number":101}`, nil)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(decodeBody(c, rec)["status"], qt.Equals, "occupied")

	rec = doJSON(f.e, http.MethodGet, "/api/students?room=101", "", nil)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(decodeBody(c, rec)["total"], qt.Equals, 1.0)

	rec = doJSON(f.e, http.MethodPost, "/api/fees",
		fmt.Sprintf(`{"student_id":%q,"amount":"1200","fee_type":"Mess Fee","due_date":"2024-03-01"}`, studentID), nil)
	c.Assert(rec.Code, qt.Equals, http.StatusCreated)
	feeID := decodeBody(c, rec)["id"].(string)

	rec = doJSON(f.e, http.MethodPost, "/api/fees",
		fmt.Sprintf(`{"student_id":%q,"amount":"4500","fee_type":"Monthly Rent","due_date":"2024-03-01","status":"paid"}`, studentID), nil)
	c.Assert(rec.Code, qt.Equals, http.StatusCreated)

	rec = doJSON(f.e, http.MethodGet, "/api/fees/stats", "", nil)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(decodeBody(c, rec), qt.DeepEquals, map[string]interface{}{
		"total_amount":  "5700",
		"total_paid":    "4500",
		"total_pending": "1200",
	})

	rec = doJSON(f.e, http.MethodPost, "/api/fees/"+feeID+"/mark-paid", "", nil)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(decodeBody(c, rec)["status"], qt.Equals, "paid")
	rec = doJSON(f.e, http.MethodPost, "/api/fees/"+feeID+"/mark-paid", "", nil)
	c.Assert(rec.Code, qt.Equals, http.StatusConflict)

	rec = doJSON(f.e, http.MethodGet, "/api/students/"+studentID+"/mess-bills", "", nil)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	bills := decodeBody(c, rec)["data"].([]interface{})
	c.Assert(bills, qt.HasLen, 1)
	c.Assert(bills[0].(map[string]interface{})["status"], qt.Equals, "paid")

	rec = doJSON(f.e, http.MethodGet, "/api/dashboard", "", nil)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	overview := decodeBody(c, rec)
	c.Assert(overview["students"], qt.Equals, 1.0)
	c.Assert(overview["available_rooms"], qt.Equals, 0.0)

	rec = doJSON(f.e, http.MethodDelete, "/api/students/"+studentID, "", nil)
	c.Assert(rec.Code, qt.Equals, http.StatusNoContent)

	var room models.Room
	c.Assert(f.db.First(&room, "room_number = ?", 101).Error, qt.IsNil)
	c.Assert(room.CurrentOccupancy, qt.Equals, 0)
	var fees int64
	c.Assert(f.db.Model(&models.Fee{}).Count(&fees).Error, qt.IsNil)
	c.Assert(fees, qt.Equals, int64(0))
}

func TestLeaveRequestFlow(t *testing.T) {
	c := qt.New(t)
	f := newAPIFixture(t, nil)

	body := `{"student_name":"Asha","student_email":"asha@example.com","student_room":"101","parent_email":"parent@example.com","from_date":"2024-03-10","to_date":"2024-03-12","reason":"Family function"}`
	rec := doJSON(f.e, http.MethodPost, "/api/leave-requests", body, nil)
	c.Assert(rec.Code, qt.Equals, http.StatusCreated)
	leave := decodeBody(c, rec)
	leaveID := leave["id"].(string)
	c.Assert(leave["status"], qt.Equals, "pending_parent")

	var otp models.OTPVerification
	c.Assert(f.db.First(&otp, "leave_request_id = ?", leaveID).Error, qt.IsNil)
	c.Assert(otp.OTPCode, qt.HasLen, 6)

	var task models.ScheduledTask
	c.Assert(f.db.First(&task, "task_name = ?", "send_notification").Error, qt.IsNil)
	c.Assert(task.Arguments["otp"], qt.Equals, otp.OTPCode)

	wrong := "000000"
	if otp.OTPCode == wrong {
		wrong = "111111"
	}
	rec = doJSON(f.e, http.MethodPost, "/api/leave-requests/"+leaveID+"/verify-otp", `{"otp":"`+wrong+`"}`, nil)
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)

	rec = doJSON(f.e, http.MethodPost, "/api/leave-requests/"+leaveID+"/verify-otp", `{"otp":"`+otp.OTPCode+`"}`, nil)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(decodeBody(c, rec)["status"], qt.Equals, "pending_warden")

	rec = doJSON(f.e, http.MethodPost, "/api/leave-requests/"+leaveID+"/verify-otp", `{"otp":"`+otp.OTPCode+`"}`, nil)
	c.Assert(rec.Code, qt.Equals, http.StatusConflict)

	rec = doJSON(f.e, http.MethodPost, "/api/leave-requests/"+leaveID+"/approve", "", nil)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	approved := decodeBody(c, rec)
	c.Assert(approved["status"], qt.Equals, "approved")
	c.Assert(approved["qr_code"], qt.Not(qt.Equals), nil)

	rec = doJSON(f.e, http.MethodPost, "/api/leave-requests/"+leaveID+"/reject", `{"reason":"too late"}`, nil)
	c.Assert(rec.Code, qt.Equals, http.StatusConflict)

	rec = doJSON(f.e, http.MethodPost, "/api/leave-requests",
		`{"student_name":"Asha","student_email":"asha@example.com","student_room":"101","parent_email":"parent@example.com","from_date":"2024-03-12","to_date":"2024-03-10","reason":"x"}`, nil)
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
}

func TestComplaintAndMessMenuAPI(t *testing.T) {
	c := qt.New(t)
	f := newAPIFixture(t, nil)

	rec := doJSON(f.e, http.MethodPost, "/api/complaints", `{"title":"Leaking tap","description":"Room 101 bathroom","priority":"high"}`, nil)
	c.Assert(rec.Code, qt.Equals, http.StatusCreated)
	id := decodeBody(c, rec)["id"].(string)

	rec = doJSON(f.e, http.MethodPut, "/api/complaints/"+id+"/status", `{"status":"resolved"}`, nil)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(decodeBody(c, rec)["resolved_at"], qt.Not(qt.IsNil))

	rec = doJSON(f.e, http.MethodPut, "/api/complaints/"+id+"/status", `{"status":"closed"}`, nil)
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)

	rec = doJSON(f.e, http.MethodPut, "/api/mess-menu/Friday", `{"breakfast":"Poha","lunch":"Rajma chawal","dinner":"Paneer"}`, nil)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	rec = doJSON(f.e, http.MethodPut, "/api/mess-menu/someday", `{}`, nil)
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)

	rec = doJSON(f.e, http.MethodGet, "/api/mess-menu", "", nil)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	menu := decodeBody(c, rec)["data"].([]interface{})
	c.Assert(menu, qt.HasLen, 7)
	friday := menu[4].(map[string]interface{})
	c.Assert(friday["day"], qt.Equals, "friday")
	c.Assert(friday["breakfast"], qt.Equals, "Poha")
}
