package booking

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bookingguru/drivelearn-server/cmd/models"
	"github.com/bookingguru/drivelearn-server/cmd/utils"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

// BookingFee is the flat platform fee added to every lesson.
const BookingFee = 2.50

type BookingHandler struct {
    db    *gorm.DB
    locks *instructorLocks
}

func NewBookingHandler(db *gorm.DB) *BookingHandler {
    return &BookingHandler{db: db, locks: newInstructorLocks()}
}


func (h *BookingHandler) RegisterRoutes(router *mux.Router) {
    adminOnly := utils.RequireRole(h.db, "admin")

    router.HandleFunc("/bookings", h.CreateBooking).Methods("POST")
    router.HandleFunc("/bookings", adminOnly(h.GetAllBookings)).Methods("GET")
    router.HandleFunc("/bookings/availability", h.CheckSlotAvailability).Methods("GET")
    router.HandleFunc("/bookings/{id:[0-9]+}", h.GetBooking).Methods("GET")
    router.HandleFunc("/bookings/student/{studentId}", h.GetStudentBookings).Methods("GET")
    router.HandleFunc("/bookings/instructor/{instructorId}", h.GetInstructorBookings).Methods("GET")
    router.HandleFunc("/bookings/instructor/{instructorId}/date/{date}", h.GetInstructorSchedule).Methods("GET")
    router.HandleFunc("/bookings/{id:[0-9]+}/status", h.UpdateStatus).Methods("PATCH")
    router.HandleFunc("/bookings/{id:[0-9]+}/payment", h.UpdatePaymentStatus).Methods("PATCH")
}


func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
    var bookingRequest struct {
        StudentID      uint    `json:"student_id"`
        InstructorID   uint    `json:"instructor_id"`
        Date           string  `json:"date"` // YYYY-MM-DD
        StartTime      string  `json:"start_time"`
        DurationHours  float64 `json:"duration_hours"`
        PickupLocation string  `json:"pickup_location"`
        Notes          string  `json:"notes"`
    }

    if err := json.NewDecoder(r.Body).Decode(&bookingRequest); err != nil {
        http.Error(w, "Invalid request body", http.StatusBadRequest)
        return
    }

    date, err := time.Parse("2006-01-02", bookingRequest.Date)
    if err != nil {
        http.Error(w, "Invalid date format. Use YYYY-MM-DD", http.StatusBadRequest)
        return
    }

    // Validate the requested window before touching storage
    if _, _, err := SlotWindow(bookingRequest.StartTime, bookingRequest.DurationHours); err != nil {
        http.Error(w, err.Error(), http.StatusBadRequest)
        return
    }

    var student models.User
    if err := h.db.First(&student, bookingRequest.StudentID).Error; err != nil {
        http.Error(w, "Student not found", http.StatusNotFound)
        return
    }

    var instructor models.Instructor
    if err := h.db.First(&instructor, bookingRequest.InstructorID).Error; err != nil {
        http.Error(w, "Instructor not found", http.StatusNotFound)
        return
    }

    // The requested start must be a slot the instructor offers on that weekday
    weekday := strings.ToLower(date.Weekday().String())
    var weekly models.WeeklyAvailability
    err = h.db.Where("instructor_id = ? AND weekday = ?", instructor.ID, weekday).First(&weekly).Error
    if err != nil {
        if errors.Is(err, gorm.ErrRecordNotFound) {
            http.Error(w, "Instructor is not available on "+weekday, http.StatusBadRequest)
            return
        }
        http.Error(w, "Database error", http.StatusInternalServerError)
        return
    }
    if !slotOffered(weekly.Slots, bookingRequest.StartTime) {
        http.Error(w, "Requested time is outside the instructor's availability", http.StatusBadRequest)
        return
    }

    lessonCost := instructor.HourlyRate * bookingRequest.DurationHours

    // Serialise the check-then-create sequence per instructor so two
    // concurrent requests for overlapping slots cannot both pass the
    // availability check before either is persisted.
    lock := h.locks.forInstructor(instructor.ID)
    lock.Lock()
    defer lock.Unlock()

    tx := h.db.Begin()

    availability, err := CheckAvailability(tx, instructor.ID, date, bookingRequest.StartTime, bookingRequest.DurationHours)
    if err != nil {
        tx.Rollback()
        http.Error(w, "Unable to verify availability", http.StatusInternalServerError)
        return
    }
    if !availability.Available {
        tx.Rollback()
        http.Error(w, availability.Reason, http.StatusConflict)
        return
    }

    booking := models.Booking{
        StudentID:      student.ID,
        InstructorID:   instructor.ID,
        Date:           date,
        StartTime:      bookingRequest.StartTime,
        DurationHours:  bookingRequest.DurationHours,
        Status:         models.BookingStatusPending,
        LessonCost:     lessonCost,
        BookingFee:     BookingFee,
        Total:          lessonCost + BookingFee,
        PaymentStatus:  models.PaymentStatusPending,
        PickupLocation: bookingRequest.PickupLocation,
        Notes:          bookingRequest.Notes,
    }

    if err := tx.Create(&booking).Error; err != nil {
        tx.Rollback()
        http.Error(w, "Error creating booking", http.StatusInternalServerError)
        return
    }

    if err := tx.Commit().Error; err != nil {
        http.Error(w, "Error completing booking", http.StatusInternalServerError)
        return
    }

    h.db.Preload("Student").Preload("Instructor").First(&booking, booking.ID)

    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(http.StatusCreated)
    json.NewEncoder(w).Encode(booking)
}

func slotOffered(slots []string, startTime string) bool {
    for _, s := range slots {
        if s == startTime {
            return true
        }
    }
    return false
}


// CheckSlotAvailability exposes the conflict check without reserving
// anything, so clients can grey out taken slots before submitting.
func (h *BookingHandler) CheckSlotAvailability(w http.ResponseWriter, r *http.Request) {
    instructorID, err := strconv.ParseUint(r.URL.Query().Get("instructor_id"), 10, 64)
    if err != nil {
        http.Error(w, "Invalid instructor ID", http.StatusBadRequest)
        return
    }

    date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
    if err != nil {
        http.Error(w, "Invalid date format. Use YYYY-MM-DD", http.StatusBadRequest)
        return
    }

    startTime := r.URL.Query().Get("start_time")
    duration, err := strconv.ParseFloat(r.URL.Query().Get("duration"), 64)
    if err != nil {
        http.Error(w, "Invalid duration", http.StatusBadRequest)
        return
    }

    if _, _, err := SlotWindow(startTime, duration); err != nil {
        http.Error(w, err.Error(), http.StatusBadRequest)
        return
    }

    availability, err := CheckAvailability(h.db, uint(instructorID), date, startTime, duration)
    if err != nil {
        http.Error(w, "Unable to verify availability", http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(availability)
}


func (h *BookingHandler) GetAllBookings(w http.ResponseWriter, r *http.Request) {
    page, _ := strconv.Atoi(r.URL.Query().Get("page"))
    if page < 1 {
        page = 1
    }
    pageSize := 100

    query := h.db.Model(&models.Booking{}).Preload("Student").Preload("Instructor")

    // Apply filters
    if status := r.URL.Query().Get("status"); status != "" {
        query = query.Where("status = ?", status)
    }
    if date := r.URL.Query().Get("date"); date != "" {
        query = query.Where("date = ?", date)
    }
    if instructorID := r.URL.Query().Get("instructor_id"); instructorID != "" {
        query = query.Where("instructor_id = ?", instructorID)
    }

    var total int64
    query.Count(&total)

    var bookings []models.Booking
    if err := query.Offset((page - 1) * pageSize).Limit(pageSize).
        Order("date DESC, start_time DESC").Find(&bookings).Error; err != nil {
        http.Error(w, "Error retrieving bookings", http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]interface{}{
        "bookings":    bookings,
        "total":       total,
        "page":        page,
        "page_size":   pageSize,
        "total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
    })
}

// GetBooking retrieves a specific booking by ID
func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
    vars := mux.Vars(r)
    bookingID, err := strconv.ParseUint(vars["id"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid booking ID", http.StatusBadRequest)
        return
    }

    var booking models.Booking
    if err := h.db.Preload("Student").Preload("Instructor").First(&booking, bookingID).Error; err != nil {
        http.Error(w, "Booking not found", http.StatusNotFound)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(booking)
}

// GetStudentBookings retrieves all bookings for a specific student
func (h *BookingHandler) GetStudentBookings(w http.ResponseWriter, r *http.Request) {
    vars := mux.Vars(r)
    studentID, err := strconv.ParseUint(vars["studentId"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid student ID", http.StatusBadRequest)
        return
    }

    page, _ := strconv.Atoi(r.URL.Query().Get("page"))
    if page < 1 {
        page = 1
    }
    pageSize := 100

    query := h.db.Model(&models.Booking{}).Where("student_id = ?", studentID).
        Preload("Instructor")

    var total int64
    query.Count(&total)

    var bookings []models.Booking
    if err := query.Offset((page - 1) * pageSize).Limit(pageSize).
        Order("date DESC, start_time DESC").Find(&bookings).Error; err != nil {
        http.Error(w, "Error retrieving bookings", http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]interface{}{
        "bookings":    bookings,
        "total":       total,
        "page":        page,
        "page_size":   pageSize,
        "total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
    })
}

// GetInstructorBookings retrieves all bookings for a specific instructor
func (h *BookingHandler) GetInstructorBookings(w http.ResponseWriter, r *http.Request) {
    vars := mux.Vars(r)
    instructorID, err := strconv.ParseUint(vars["instructorId"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid instructor ID", http.StatusBadRequest)
        return
    }

    page, _ := strconv.Atoi(r.URL.Query().Get("page"))
    if page < 1 {
        page = 1
    }
    pageSize := 100

    query := h.db.Model(&models.Booking{}).Where("instructor_id = ?", instructorID).
        Preload("Student")

    if status := r.URL.Query().Get("status"); status != "" {
        query = query.Where("status = ?", status)
    }

    var total int64
    query.Count(&total)

    var bookings []models.Booking
    if err := query.Offset((page - 1) * pageSize).Limit(pageSize).
        Order("date DESC, start_time DESC").Find(&bookings).Error; err != nil {
        http.Error(w, "Error retrieving bookings", http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]interface{}{
        "bookings":    bookings,
        "total":       total,
        "page":        page,
        "page_size":   pageSize,
        "total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
    })
}

// GetInstructorSchedule lists an instructor's bookings on a single date
func (h *BookingHandler) GetInstructorSchedule(w http.ResponseWriter, r *http.Request) {
    vars := mux.Vars(r)
    instructorID, err := strconv.ParseUint(vars["instructorId"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid instructor ID", http.StatusBadRequest)
        return
    }

    date, err := time.Parse("2006-01-02", vars["date"])
    if err != nil {
        http.Error(w, "Invalid date format. Use YYYY-MM-DD", http.StatusBadRequest)
        return
    }

    dayStart := date
    dayEnd := date.AddDate(0, 0, 1)

    var bookings []models.Booking
    if err := h.db.Where("instructor_id = ? AND date >= ? AND date < ?", instructorID, dayStart, dayEnd).
        Preload("Student").Order("start_time ASC").Find(&bookings).Error; err != nil {
        http.Error(w, "Error retrieving schedule", http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(bookings)
}


// UpdateStatus moves a booking through its lifecycle. Only the transitions
// in models.StatusTransitions are allowed; terminal states are frozen and
// cancellation is a transition, never a delete.
func (h *BookingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
    vars := mux.Vars(r)
    bookingID, err := strconv.ParseUint(vars["id"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid booking ID", http.StatusBadRequest)
        return
    }

    var statusUpdate struct {
        Status string `json:"status"`
    }
    if err := json.NewDecoder(r.Body).Decode(&statusUpdate); err != nil {
        http.Error(w, "Invalid request body", http.StatusBadRequest)
        return
    }

    switch statusUpdate.Status {
    case models.BookingStatusConfirmed, models.BookingStatusCancelled,
        models.BookingStatusCompleted, models.BookingStatusNoShow:
    default:
        http.Error(w, "Unknown booking status", http.StatusBadRequest)
        return
    }

    tx := h.db.Begin()

    var booking models.Booking
    if err := tx.First(&booking, bookingID).Error; err != nil {
        tx.Rollback()
        http.Error(w, "Booking not found", http.StatusNotFound)
        return
    }

    if !models.CanTransition(booking.Status, statusUpdate.Status) {
        tx.Rollback()
        http.Error(w, fmt.Sprintf("Cannot change booking from %s to %s", booking.Status, statusUpdate.Status), http.StatusConflict)
        return
    }

    booking.Status = statusUpdate.Status
    if err := tx.Save(&booking).Error; err != nil {
        tx.Rollback()
        http.Error(w, "Error updating booking", http.StatusInternalServerError)
        return
    }

    if err := tx.Commit().Error; err != nil {
        http.Error(w, "Error updating booking", http.StatusInternalServerError)
        return
    }

    log.Printf("Booking %d moved to %s", booking.ID, booking.Status)

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(booking)
}

// UpdatePaymentStatus updates the payment status of a booking. Payment state
// is tracked independently of the booking lifecycle.
func (h *BookingHandler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
    vars := mux.Vars(r)
    bookingID, err := strconv.ParseUint(vars["id"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid booking ID", http.StatusBadRequest)
        return
    }

    var paymentUpdate struct {
        PaymentStatus string `json:"payment_status"`
        PaymentID     string `json:"payment_id"`
    }
    if err := json.NewDecoder(r.Body).Decode(&paymentUpdate); err != nil {
        http.Error(w, "Invalid request body", http.StatusBadRequest)
        return
    }

    if !models.ValidPaymentStatus(paymentUpdate.PaymentStatus) {
        http.Error(w, "Unknown payment status", http.StatusBadRequest)
        return
    }

    result := h.db.Model(&models.Booking{}).Where("id = ?", bookingID).
        Updates(map[string]interface{}{
            "payment_status": paymentUpdate.PaymentStatus,
            "payment_id":     paymentUpdate.PaymentID,
        })

    if result.Error != nil {
        http.Error(w, "Error updating payment status", http.StatusInternalServerError)
        return
    }

    if result.RowsAffected == 0 {
        http.Error(w, "Booking not found", http.StatusNotFound)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]string{
        "message": "Payment status updated successfully",
    })
}
