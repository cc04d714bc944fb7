package availability

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bookingguru/drivelearn-server/cmd/models"
	"github.com/gorilla/mux"
	"github.com/lib/pq"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTest(t *testing.T) (*gorm.DB, *mux.Router) {
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
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}

	router := mux.NewRouter()
	subrouter := router.PathPrefix("/api/v1").Subrouter()
	NewAvailabilityHandler(db).RegisterRoutes(subrouter)
	return db, router
}

func seedInstructor(t *testing.T, db *gorm.DB) models.Instructor {
	t.Helper()
	instructor := models.Instructor{UserID: 1, HourlyRate: 40}
	if err := db.Create(&instructor).Error; err != nil {
		t.Fatalf("seed instructor: %v", err)
	}
	return instructor
}

func TestSetAvailability_CreateAndReplace(t *testing.T) {
	db, router := setupTest(t)
	instructor := seedInstructor(t, db)

	post := func(weekday string, slots []string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]interface{}{"weekday": weekday, "slots": slots})
		req := httptest.NewRequest("POST", fmt.Sprintf("/api/v1/instructors/%d/availability", instructor.ID), bytes.NewBuffer(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := post("Monday", []string{"09:00", "10:30"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	// Posting the same weekday again replaces the slot list
	rec = post("monday", []string{"14:00"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on replace, got %d: %s", rec.Code, rec.Body.String())
	}

	var weekly models.WeeklyAvailability
	if err := db.Where("instructor_id = ? AND weekday = ?", instructor.ID, "monday").First(&weekly).Error; err != nil {
		t.Fatalf("reload availability: %v", err)
	}
	if len(weekly.Slots) != 1 || weekly.Slots[0] != "14:00" {
		t.Fatalf("slots not replaced: %v", weekly.Slots)
	}

	var count int64
	db.Model(&models.WeeklyAvailability{}).Where("instructor_id = ?", instructor.ID).Count(&count)
	if count != 1 {
		t.Fatalf("expected a single monday row, got %d", count)
	}
}

func TestSetAvailability_Validation(t *testing.T) {
	db, router := setupTest(t)
	instructor := seedInstructor(t, db)

	cases := []struct {
		name    string
		weekday string
		slots   []string
	}{
		{"bad weekday", "funday", []string{"09:00"}},
		{"bad slot", "monday", []string{"9am"}},
	}

	for _, c := range cases {
		body, _ := json.Marshal(map[string]interface{}{"weekday": c.weekday, "slots": c.slots})
		req := httptest.NewRequest("POST", fmt.Sprintf("/api/v1/instructors/%d/availability", instructor.ID), bytes.NewBuffer(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", c.name, rec.Code)
		}
	}
}

func TestGetAvailability_WeekdayMapping(t *testing.T) {
	db, router := setupTest(t)
	instructor := seedInstructor(t, db)

	rows := []models.WeeklyAvailability{
		{InstructorID: instructor.ID, Weekday: "monday", Slots: pq.StringArray{"09:00", "10:00"}},
		{InstructorID: instructor.ID, Weekday: "wednesday", Slots: pq.StringArray{"14:00"}},
	}
	for i := range rows {
		if err := db.Create(&rows[i]).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	req := httptest.NewRequest("GET", fmt.Sprintf("/api/v1/instructors/%d/availability", instructor.ID), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var schedule map[string][]string
	if err := json.Unmarshal(rec.Body.Bytes(), &schedule); err != nil {
		t.Fatalf("decode schedule: %v", err)
	}
	if len(schedule["monday"]) != 2 || schedule["monday"][1] != "10:00" {
		t.Fatalf("unexpected monday slots: %v", schedule["monday"])
	}
	if len(schedule["wednesday"]) != 1 {
		t.Fatalf("unexpected wednesday slots: %v", schedule["wednesday"])
	}
}

func TestDeleteWeekdayAvailability(t *testing.T) {
	db, router := setupTest(t)
	instructor := seedInstructor(t, db)

	weekly := models.WeeklyAvailability{InstructorID: instructor.ID, Weekday: "friday", Slots: pq.StringArray{"09:00"}}
	if err := db.Create(&weekly).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	req := httptest.NewRequest("DELETE", fmt.Sprintf("/api/v1/instructors/%d/availability/friday", instructor.ID), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest("DELETE", fmt.Sprintf("/api/v1/instructors/%d/availability/friday", instructor.ID), nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rec.Code)
	}
}
