package review

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/bookingguru/drivelearn-server/cmd/models"
	"github.com/bookingguru/drivelearn-server/cmd/utils"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type ReviewHandler struct {
	db *gorm.DB
}

func NewReviewHandler(db *gorm.DB) *ReviewHandler {
	return &ReviewHandler{db: db}
}

func (h *ReviewHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/reviews", utils.AuthMiddleware(h.CreateReview)).Methods("POST")
	router.HandleFunc("/reviews/{id:[0-9]+}", h.GetReview).Methods("GET")
	router.HandleFunc("/reviews/{id:[0-9]+}", utils.AuthMiddleware(h.DeleteReview)).Methods("DELETE")
	router.HandleFunc("/instructors/{instructorId:[0-9]+}/reviews", h.GetInstructorReviews).Methods("GET")
}

// CreateReview records a student's review of a completed lesson and
// refreshes the instructor's rating aggregate
func (h *ReviewHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	var request struct {
		BookingID uint   `json:"booking_id"`
		Rating    int    `json:"rating"`
		Comment   string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if request.Rating < 1 || request.Rating > 5 {
		http.Error(w, "Rating must be between 1 and 5", http.StatusBadRequest)
		return
	}

	studentID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var booking models.Booking
	if err := h.db.First(&booking, request.BookingID).Error; err != nil {
		http.Error(w, "Booking not found", http.StatusNotFound)
		return
	}

	if booking.StudentID != studentID {
		http.Error(w, "You can only review your own lessons", http.StatusForbidden)
		return
	}

	// Only finished lessons can be reviewed
	if booking.Status != models.BookingStatusCompleted {
		http.Error(w, "Only completed lessons can be reviewed", http.StatusBadRequest)
		return
	}

	var existing models.Review
	if err := h.db.Where("booking_id = ?", request.BookingID).First(&existing).Error; err == nil {
		http.Error(w, "This lesson has already been reviewed", http.StatusConflict)
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	review := models.Review{
		BookingID:    request.BookingID,
		StudentID:    studentID,
		InstructorID: booking.InstructorID,
		Rating:       request.Rating,
		Comment:      request.Comment,
	}

	tx := h.db.Begin()

	if err := tx.Create(&review).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error creating review", http.StatusInternalServerError)
		return
	}

	if err := recalculateRating(tx, booking.InstructorID); err != nil {
		tx.Rollback()
		http.Error(w, "Error updating instructor rating", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Error committing transaction", http.StatusInternalServerError)
		return
	}

	log.Printf("Review %d created for instructor %d (booking %d)", review.ID, booking.InstructorID, booking.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(review)
}

// recalculateRating refreshes the denormalized rating columns from the
// review rows inside the caller's transaction
func recalculateRating(tx *gorm.DB, instructorID uint) error {
	var stats struct {
		Avg   float64
		Count int64
	}
	if err := tx.Model(&models.Review{}).
		Where("instructor_id = ?", instructorID).
		Select("COALESCE(AVG(rating), 0) as avg, COUNT(*) as count").
		Scan(&stats).Error; err != nil {
		return err
	}

	return tx.Model(&models.Instructor{}).Where("id = ?", instructorID).Updates(map[string]interface{}{
		"average_rating": stats.Avg,
		"total_reviews":  stats.Count,
	}).Error
}

func (h *ReviewHandler) GetReview(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	reviewID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid review ID", http.StatusBadRequest)
		return
	}

	var review models.Review
	if err := h.db.First(&review, reviewID).Error; err != nil {
		http.Error(w, "Review not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(review)
}

// DeleteReview removes a review and refreshes the instructor aggregate.
// Only the authoring student may delete it.
func (h *ReviewHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	reviewID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid review ID", http.StatusBadRequest)
		return
	}

	callerID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var review models.Review
	if err := h.db.First(&review, reviewID).Error; err != nil {
		http.Error(w, "Review not found", http.StatusNotFound)
		return
	}

	if review.StudentID != callerID {
		http.Error(w, "Insufficient permissions", http.StatusForbidden)
		return
	}

	tx := h.db.Begin()

	if err := tx.Delete(&review).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Error deleting review", http.StatusInternalServerError)
		return
	}

	if err := recalculateRating(tx, review.InstructorID); err != nil {
		tx.Rollback()
		http.Error(w, "Error updating instructor rating", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Error committing transaction", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Review deleted successfully",
	})
}

// GetInstructorReviews lists an instructor's reviews, newest first
func (h *ReviewHandler) GetInstructorReviews(w http.ResponseWriter, r *http.Request) {
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
	pageSize := 20

	var total int64
	h.db.Model(&models.Review{}).Where("instructor_id = ?", instructorID).Count(&total)

	var reviews []models.Review
	if err := h.db.Where("instructor_id = ?", instructorID).
		Order("created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&reviews).Error; err != nil {
		http.Error(w, "Error retrieving reviews", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"reviews":     reviews,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
	})
}
