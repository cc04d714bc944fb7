package booking

import (
	"testing"
	"time"

	"github.com/bookingguru/drivelearn-server/cmd/models"
	"github.com/lib/pq"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestDB opens an in-memory sqlite database with a minimal,
// sqlite-friendly schema for the booking flow. A single connection keeps the
// in-memory database alive across the whole test.
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
		`CREATE TABLE weekly_availabilities (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at DATETIME,
			updated_at DATETIME,
			deleted_at DATETIME,
			instructor_id INTEGER NOT NULL,
			weekday TEXT NOT NULL,
			slots TEXT
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
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}

	return db
}

// seedInstructor creates a user + instructor pair offering lessons every day
// of the week at the given start slots.
func seedInstructor(t *testing.T, db *gorm.DB, rate float64, slots []string) models.Instructor {
	t.Helper()

	user := models.User{FullName: "Test Instructor", Email: "instructor@example.com", Role: "instructor", Status: "active"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed instructor user: %v", err)
	}

	instructor := models.Instructor{UserID: user.ID, HourlyRate: rate, Transmission: "manual", Verified: true}
	if err := db.Create(&instructor).Error; err != nil {
		t.Fatalf("seed instructor: %v", err)
	}

	for _, day := range models.Weekdays {
		weekly := models.WeeklyAvailability{InstructorID: instructor.ID, Weekday: day, Slots: pq.StringArray(slots)}
		if err := db.Create(&weekly).Error; err != nil {
			t.Fatalf("seed availability: %v", err)
		}
	}

	return instructor
}

func seedStudent(t *testing.T, db *gorm.DB, email string) models.User {
	t.Helper()

	user := models.User{FullName: "Test Student", Email: email, Role: "student", Status: "active"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed student: %v", err)
	}
	return user
}

func seedBooking(t *testing.T, db *gorm.DB, instructorID, studentID uint, date time.Time, start string, duration float64, status string) models.Booking {
	t.Helper()

	b := models.Booking{
		StudentID:     studentID,
		InstructorID:  instructorID,
		Date:          date,
		StartTime:     start,
		DurationHours: duration,
		Status:        status,
		LessonCost:    duration * 35,
		BookingFee:    BookingFee,
		Total:         duration*35 + BookingFee,
		PaymentStatus: models.PaymentStatusPending,
	}
	if err := db.Create(&b).Error; err != nil {
		t.Fatalf("seed booking: %v", err)
	}
	return b
}
