package review

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bookingguru/drivelearn-server/cmd/models"
	"github.com/bookingguru/drivelearn-server/cmd/utils"
	"github.com/gorilla/mux"
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
		`CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at DATETIME,
			updated_at DATETIME,
			deleted_at DATETIME,
			full_name TEXT,
			email TEXT,
			password_hash TEXT,
			role TEXT,
			phone TEXT,
			phone_verified BOOLEAN DEFAULT FALSE,
			email_verified BOOLEAN DEFAULT FALSE,
			status TEXT DEFAULT 'inactive',
			refresh_token TEXT,
			refresh_token_expired_at DATETIME,
			profile_picture_path TEXT,
			email_verification_code TEXT,
			verification_expiry DATETIME
		);`,
		`CREATE TABLE instructors (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at DATETIME,
			updated_at DATETIME,
			deleted_at DATETIME,
			user_id INTEGER NOT NULL,
			bio TEXT,
			years_experience INTEGER DEFAULT 0,
			hourly_rate REAL NOT NULL,
			vehicle_type TEXT,
			transmission TEXT,
			service_area TEXT,
			license_number TEXT,
			verified BOOLEAN DEFAULT FALSE,
			average_rating REAL DEFAULT 0,
			total_reviews INTEGER DEFAULT 0
		);`,
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
		`CREATE TABLE reviews (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at DATETIME,
			updated_at DATETIME,
			deleted_at DATETIME,
			booking_id INTEGER NOT NULL UNIQUE,
			student_id INTEGER NOT NULL,
			instructor_id INTEGER NOT NULL,
			rating INTEGER NOT NULL,
			comment TEXT
		);`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}

	return db
}

func seedLesson(t *testing.T, db *gorm.DB, status string) (models.User, models.Instructor, models.Booking) {
	t.Helper()

	student := models.User{FullName: "Student", Email: "student@example.com", Role: "student"}
	if err := db.Create(&student).Error; err != nil {
		t.Fatalf("seed student: %v", err)
	}

	instructorUser := models.User{FullName: "Instructor", Email: "instructor@example.com", Role: "instructor"}
	if err := db.Create(&instructorUser).Error; err != nil {
		t.Fatalf("seed instructor user: %v", err)
	}
	instructor := models.Instructor{UserID: instructorUser.ID, HourlyRate: 35}
	if err := db.Create(&instructor).Error; err != nil {
		t.Fatalf("seed instructor: %v", err)
	}

	booking := models.Booking{
		StudentID:     student.ID,
		InstructorID:  instructor.ID,
		Date:          time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		StartTime:     "10:00",
		DurationHours: 1,
		Status:        status,
		LessonCost:    35,
		BookingFee:    2.50,
		Total:         37.50,
	}
	if err := db.Create(&booking).Error; err != nil {
		t.Fatalf("seed booking: %v", err)
	}

	return student, instructor, booking
}

// postReview invokes the create handler as the given user, bypassing the
// token check the router normally applies.
func postReview(h *ReviewHandler, userID uint, bookingID uint, rating int, comment string) *httptest.ResponseRecorder {
	body, _ := json.Marshal(map[string]interface{}{
		"booking_id": bookingID,
		"rating":     rating,
		"comment":    comment,
	})
	req := httptest.NewRequest("POST", "/api/v1/reviews", bytes.NewReader(body))
	req = req.WithContext(context.WithValue(req.Context(), utils.UserIDKey, userID))
	rec := httptest.NewRecorder()
	h.CreateReview(rec, req)
	return rec
}

func TestCreateReview_CompletedLesson(t *testing.T) {
	db := setupTestDB(t)
	h := NewReviewHandler(db)
	student, instructor, booking := seedLesson(t, db, models.BookingStatusCompleted)

	rec := postReview(h, student.ID, booking.ID, 5, "Very patient instructor")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var updated models.Instructor
	if err := db.First(&updated, instructor.ID).Error; err != nil {
		t.Fatalf("reload instructor: %v", err)
	}
	if updated.TotalReviews != 1 {
		t.Errorf("expected 1 review, got %d", updated.TotalReviews)
	}
	if updated.AverageRating != 5 {
		t.Errorf("expected average rating 5, got %f", updated.AverageRating)
	}
}

func TestCreateReview_RejectsUnfinishedLesson(t *testing.T) {
	db := setupTestDB(t)
	h := NewReviewHandler(db)

	for _, status := range []string{models.BookingStatusPending, models.BookingStatusConfirmed, models.BookingStatusCancelled, models.BookingStatusNoShow} {
		student, _, booking := seedLesson(t, db, status)
		rec := postReview(h, student.ID, booking.ID, 4, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status %q: expected 400, got %d", status, rec.Code)
		}
		db.Exec("DELETE FROM users")
		db.Exec("DELETE FROM instructors")
		db.Exec("DELETE FROM bookings")
	}
}

func TestCreateReview_OnePerBooking(t *testing.T) {
	db := setupTestDB(t)
	h := NewReviewHandler(db)
	student, _, booking := seedLesson(t, db, models.BookingStatusCompleted)

	if rec := postReview(h, student.ID, booking.ID, 5, "first"); rec.Code != http.StatusCreated {
		t.Fatalf("first review: expected 201, got %d", rec.Code)
	}
	if rec := postReview(h, student.ID, booking.ID, 1, "second"); rec.Code != http.StatusConflict {
		t.Fatalf("second review: expected 409, got %d", rec.Code)
	}
}

func TestCreateReview_OnlyOwnLessons(t *testing.T) {
	db := setupTestDB(t)
	h := NewReviewHandler(db)
	_, _, booking := seedLesson(t, db, models.BookingStatusCompleted)

	other := models.User{FullName: "Other", Email: "other@example.com", Role: "student"}
	if err := db.Create(&other).Error; err != nil {
		t.Fatalf("seed other student: %v", err)
	}

	rec := postReview(h, other.ID, booking.ID, 5, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestCreateReview_RatingBounds(t *testing.T) {
	db := setupTestDB(t)
	h := NewReviewHandler(db)
	student, _, booking := seedLesson(t, db, models.BookingStatusCompleted)

	for _, rating := range []int{0, 6, -1} {
		rec := postReview(h, student.ID, booking.ID, rating, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("rating %d: expected 400, got %d", rating, rec.Code)
		}
	}
}

func TestDeleteReview_RefreshesAggregate(t *testing.T) {
	db := setupTestDB(t)
	h := NewReviewHandler(db)
	student, instructor, booking := seedLesson(t, db, models.BookingStatusCompleted)

	// A second completed lesson so the aggregate has two data points
	second := models.Booking{
		StudentID:     student.ID,
		InstructorID:  instructor.ID,
		Date:          time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		StartTime:     "10:00",
		DurationHours: 1,
		Status:        models.BookingStatusCompleted,
		LessonCost:    35,
		BookingFee:    2.50,
		Total:         37.50,
	}
	if err := db.Create(&second).Error; err != nil {
		t.Fatalf("seed second booking: %v", err)
	}

	postReview(h, student.ID, booking.ID, 5, "")
	postReview(h, student.ID, second.ID, 3, "")

	var review models.Review
	if err := db.Where("booking_id = ?", second.ID).First(&review).Error; err != nil {
		t.Fatalf("load review: %v", err)
	}

	router := mux.NewRouter()
	router.HandleFunc("/reviews/{id:[0-9]+}", h.DeleteReview).Methods("DELETE")

	req := httptest.NewRequest("DELETE", fmt.Sprintf("/reviews/%d", review.ID), nil)
	req = req.WithContext(context.WithValue(req.Context(), utils.UserIDKey, student.ID))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var updated models.Instructor
	if err := db.First(&updated, instructor.ID).Error; err != nil {
		t.Fatalf("reload instructor: %v", err)
	}
	if updated.TotalReviews != 1 {
		t.Errorf("expected 1 review after delete, got %d", updated.TotalReviews)
	}
	if updated.AverageRating != 5 {
		t.Errorf("expected average rating 5 after delete, got %f", updated.AverageRating)
	}
}

func TestGetInstructorReviews_Pagination(t *testing.T) {
	db := setupTestDB(t)
	h := NewReviewHandler(db)
	student, instructor, booking := seedLesson(t, db, models.BookingStatusCompleted)

	postReview(h, student.ID, booking.ID, 4, "solid")

	router := mux.NewRouter()
	router.HandleFunc("/instructors/{instructorId:[0-9]+}/reviews", h.GetInstructorReviews).Methods("GET")

	req := httptest.NewRequest("GET", fmt.Sprintf("/instructors/%d/reviews", instructor.ID), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var response struct {
		Reviews []models.Review `json:"reviews"`
		Total   int64           `json:"total"`
		Page    int             `json:"page"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.Total != 1 || len(response.Reviews) != 1 {
		t.Fatalf("expected 1 review, got total=%d len=%d", response.Total, len(response.Reviews))
	}
	if response.Reviews[0].Rating != 4 {
		t.Errorf("expected rating 4, got %d", response.Reviews[0].Rating)
	}
}
