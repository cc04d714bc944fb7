package availability

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/bookingguru/drivelearn-server/cmd/models"
	"github.com/bookingguru/drivelearn-server/service/booking"
	"github.com/gorilla/mux"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

type AvailabilityHandler struct {
    db *gorm.DB
}

func NewAvailabilityHandler(db *gorm.DB) *AvailabilityHandler {
    return &AvailabilityHandler{db: db}
}


func (h *AvailabilityHandler) RegisterRoutes(router *mux.Router) {
    router.HandleFunc("/instructors/{instructorId}/availability", h.SetAvailability).Methods("POST")
    router.HandleFunc("/instructors/{instructorId}/availability", h.GetAvailability).Methods("GET")
    router.HandleFunc("/instructors/{instructorId}/availability/{weekday}", h.GetWeekdayAvailability).Methods("GET")
    router.HandleFunc("/instructors/{instructorId}/availability/{weekday}", h.DeleteWeekdayAvailability).Methods("DELETE")
}


// SetAvailability creates or replaces the slot list for one weekday.
func (h *AvailabilityHandler) SetAvailability(w http.ResponseWriter, r *http.Request) {
    vars := mux.Vars(r)
    instructorID, err := strconv.ParseUint(vars["instructorId"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid instructor ID", http.StatusBadRequest)
        return
    }

    var request struct {
        Weekday string   `json:"weekday"`
        Slots   []string `json:"slots"`
    }
    if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
        http.Error(w, "Invalid request body", http.StatusBadRequest)
        return
    }

    request.Weekday = strings.ToLower(request.Weekday)
    if !models.ValidWeekday(request.Weekday) {
        http.Error(w, "Invalid weekday", http.StatusBadRequest)
        return
    }

    // Every slot must be a well-formed lesson start time
    for _, slot := range request.Slots {
        if _, err := booking.ParseClock(slot); err != nil {
            http.Error(w, "Invalid slot "+slot+": expected HH:MM", http.StatusBadRequest)
            return
        }
    }

    var instructor models.Instructor
    if err := h.db.First(&instructor, instructorID).Error; err != nil {
        http.Error(w, "Instructor not found", http.StatusNotFound)
        return
    }

    var weekly models.WeeklyAvailability
    err = h.db.Where("instructor_id = ? AND weekday = ?", instructorID, request.Weekday).First(&weekly).Error
    if err != nil {
        if !errors.Is(err, gorm.ErrRecordNotFound) {
            http.Error(w, "Database error", http.StatusInternalServerError)
            return
        }
        weekly = models.WeeklyAvailability{
            InstructorID: uint(instructorID),
            Weekday:      request.Weekday,
            Slots:        pq.StringArray(request.Slots),
        }
        if err := h.db.Create(&weekly).Error; err != nil {
            http.Error(w, "Error creating availability", http.StatusInternalServerError)
            return
        }
        w.Header().Set("Content-Type", "application/json")
        w.WriteHeader(http.StatusCreated)
        json.NewEncoder(w).Encode(weekly)
        return
    }

    weekly.Slots = pq.StringArray(request.Slots)
    if err := h.db.Save(&weekly).Error; err != nil {
        http.Error(w, "Error updating availability", http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(weekly)
}


func (h *AvailabilityHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
    vars := mux.Vars(r)
    instructorID, err := strconv.ParseUint(vars["instructorId"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid instructor ID", http.StatusBadRequest)
        return
    }

    var availabilities []models.WeeklyAvailability
    if err := h.db.Where("instructor_id = ?", instructorID).Find(&availabilities).Error; err != nil {
        http.Error(w, "Error retrieving availability", http.StatusInternalServerError)
        return
    }

    // Present as a weekday -> slots mapping
    schedule := make(map[string][]string, len(availabilities))
    for _, a := range availabilities {
        schedule[a.Weekday] = a.Slots
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(schedule)
}

func (h *AvailabilityHandler) GetWeekdayAvailability(w http.ResponseWriter, r *http.Request) {
    vars := mux.Vars(r)
    instructorID, err := strconv.ParseUint(vars["instructorId"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid instructor ID", http.StatusBadRequest)
        return
    }

    weekday := strings.ToLower(vars["weekday"])
    if !models.ValidWeekday(weekday) {
        http.Error(w, "Invalid weekday", http.StatusBadRequest)
        return
    }

    var weekly models.WeeklyAvailability
    if err := h.db.Where("instructor_id = ? AND weekday = ?", instructorID, weekday).First(&weekly).Error; err != nil {
        http.Error(w, "Availability not found", http.StatusNotFound)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(weekly)
}

func (h *AvailabilityHandler) DeleteWeekdayAvailability(w http.ResponseWriter, r *http.Request) {
    vars := mux.Vars(r)
    instructorID, err := strconv.ParseUint(vars["instructorId"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid instructor ID", http.StatusBadRequest)
        return
    }

    weekday := strings.ToLower(vars["weekday"])

    result := h.db.Where("instructor_id = ? AND weekday = ?", instructorID, weekday).Delete(&models.WeeklyAvailability{})
    if result.Error != nil {
        http.Error(w, "Error deleting availability", http.StatusInternalServerError)
        return
    }

    if result.RowsAffected == 0 {
        http.Error(w, "Availability not found", http.StatusNotFound)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]string{
        "message": "Availability deleted successfully",
    })
}
