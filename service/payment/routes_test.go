package payment

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bookingguru/drivelearn-server/cmd/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	schema := []string{
		`CREATE TABLE bookings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at DATETIME,
			updated_at DATETIME,
			deleted_at DATETIME,
			student_id INTEGER NOT NULL,
			instructor_id INTEGER NOT NULL,
			date DATETIME NOT NULL,
			start_time TEXT NOT NULL,
			duration_hours REAL NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			lesson_cost REAL NOT NULL,
			booking_fee REAL NOT NULL,
			total REAL NOT NULL,
			payment_status TEXT NOT NULL DEFAULT 'pending',
			payment_id TEXT,
			pickup_location TEXT,
			notes TEXT
		);`,
		`CREATE TABLE transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at DATETIME,
			updated_at DATETIME,
			deleted_at DATETIME,
			user_id INTEGER NOT NULL,
			booking_id INTEGER,
			amount REAL NOT NULL,
			method TEXT NOT NULL,
			purpose TEXT NOT NULL,
			reference TEXT
		);`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}

	return db
}

func seedBooking(t *testing.T, db *gorm.DB, status string) models.Booking {
	t.Helper()

	booking := models.Booking{
		StudentID:     1,
		InstructorID:  1,
		Date:          time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		StartTime:     "10:00",
		DurationHours: 1,
		Status:        status,
		LessonCost:    35,
		BookingFee:    2.50,
		Total:         37.50,
		PaymentStatus: models.PaymentStatusPending,
	}
	if err := db.Create(&booking).Error; err != nil {
		t.Fatalf("seed booking: %v", err)
	}
	return booking
}

func signedWebhook(t *testing.T, secret string, bookingID uint) *http.Request {
	t.Helper()

	payload := map[string]interface{}{
		"event": "charge.success",
		"data": map[string]interface{}{
			"reference": fmt.Sprintf("BKG-%d-1756600000", bookingID),
			"amount":    3750,
			"channel":   "mobile_money",
			"status":    "success",
		},
	}
	body, _ := json.Marshal(payload)

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)

	req := httptest.NewRequest("POST", "/api/v1/payments/webhook", bytes.NewReader(body))
	req.Header.Set("x-paystack-signature", hex.EncodeToString(mac.Sum(nil)))
	return req
}

func TestWebhook_ConfirmsBookingOnSuccess(t *testing.T) {
	t.Setenv("PAYMENT_WEBHOOK_SECRET", "test-secret")

	db := setupTestDB(t)
	h := NewPaymentHandler(db)
	booking := seedBooking(t, db, models.BookingStatusPending)

	rec := httptest.NewRecorder()
	h.HandleWebhook(rec, signedWebhook(t, "test-secret", booking.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var updated models.Booking
	if err := db.First(&updated, booking.ID).Error; err != nil {
		t.Fatalf("reload booking: %v", err)
	}
	if updated.PaymentStatus != models.PaymentStatusCompleted {
		t.Errorf("expected payment completed, got %q", updated.PaymentStatus)
	}
	if updated.Status != models.BookingStatusConfirmed {
		t.Errorf("expected booking confirmed, got %q", updated.Status)
	}

	var count int64
	db.Model(&models.Transaction{}).Where("booking_id = ?", booking.ID).Count(&count)
	if count != 1 {
		t.Errorf("expected 1 transaction, got %d", count)
	}

	// Amounts arrive in the minor unit
	var transaction models.Transaction
	db.Where("booking_id = ?", booking.ID).First(&transaction)
	if transaction.Amount != 37.50 {
		t.Errorf("expected amount 37.50, got %f", transaction.Amount)
	}
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	t.Setenv("PAYMENT_WEBHOOK_SECRET", "test-secret")

	db := setupTestDB(t)
	h := NewPaymentHandler(db)
	booking := seedBooking(t, db, models.BookingStatusPending)

	rec := httptest.NewRecorder()
	h.HandleWebhook(rec, signedWebhook(t, "wrong-secret", booking.ID))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	var updated models.Booking
	db.First(&updated, booking.ID)
	if updated.PaymentStatus != models.PaymentStatusPending {
		t.Errorf("booking must stay unpaid after a rejected webhook, got %q", updated.PaymentStatus)
	}
}

func TestWebhook_DuplicateDeliveryIsIdempotent(t *testing.T) {
	t.Setenv("PAYMENT_WEBHOOK_SECRET", "test-secret")

	db := setupTestDB(t)
	h := NewPaymentHandler(db)
	booking := seedBooking(t, db, models.BookingStatusPending)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.HandleWebhook(rec, signedWebhook(t, "test-secret", booking.ID))
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	var count int64
	db.Model(&models.Transaction{}).Where("booking_id = ?", booking.ID).Count(&count)
	if count != 1 {
		t.Errorf("expected 1 transaction after duplicate delivery, got %d", count)
	}
}

func TestWebhook_CancelledBookingKeepsStatus(t *testing.T) {
	t.Setenv("PAYMENT_WEBHOOK_SECRET", "test-secret")

	db := setupTestDB(t)
	h := NewPaymentHandler(db)
	booking := seedBooking(t, db, models.BookingStatusCancelled)

	rec := httptest.NewRecorder()
	h.HandleWebhook(rec, signedWebhook(t, "test-secret", booking.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var updated models.Booking
	db.First(&updated, booking.ID)
	if updated.Status != models.BookingStatusCancelled {
		t.Errorf("cancelled booking must stay cancelled, got %q", updated.Status)
	}
	if updated.PaymentStatus != models.PaymentStatusCompleted {
		t.Errorf("payment should still be recorded, got %q", updated.PaymentStatus)
	}
}

func TestBookingReference_RoundTrip(t *testing.T) {
	reference := BookingReference(42)
	id, err := bookingIDFromReference(reference)
	if err != nil {
		t.Fatalf("parse reference %q: %v", reference, err)
	}
	if id != 42 {
		t.Errorf("expected booking id 42, got %d", id)
	}

	for _, bad := range []string{"SIG-42-100", "BKG-abc-100", "BKG-42", ""} {
		if _, err := bookingIDFromReference(bad); err == nil {
			t.Errorf("expected error for reference %q", bad)
		}
	}
}
