package dashboard

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bookingguru/drivelearn-server/cmd/models"
	"github.com/bookingguru/drivelearn-server/cmd/utils"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type DashboardHandler struct {
	db *gorm.DB
}

func NewDashboardHandler(db *gorm.DB) *DashboardHandler {
	return &DashboardHandler{db: db}
}

type DashboardStats struct {
	TotalStudents        int64            `json:"total_students"`
	TotalInstructors     int64            `json:"total_instructors"`
	VerifiedInstructors  int64            `json:"verified_instructors"`
	BookingsByStatus     map[string]int64 `json:"bookings_by_status"`
	LessonsThisWeek      int64            `json:"lessons_this_week"`
	TotalRevenue         float64          `json:"total_revenue"`
	RevenueThisMonth     float64          `json:"revenue_this_month"`
}

// RegisterRoutes registers dashboard-related routes with Gorilla Mux
func (h *DashboardHandler) RegisterRoutes(router *mux.Router) {
	dashboardRouter := router.PathPrefix("/dashboard").Subrouter()
	dashboardRouter.HandleFunc("/stats", utils.RequireRole(h.db, "admin")(h.GetDashboardStats)).Methods("GET")
}

func (h *DashboardHandler) GetDashboardStats(w http.ResponseWriter, r *http.Request) {
	var stats DashboardStats

	h.db.Model(&models.User{}).Where("role = ?", "student").Count(&stats.TotalStudents)
	h.db.Model(&models.Instructor{}).Count(&stats.TotalInstructors)
	h.db.Model(&models.Instructor{}).Where("verified = ?", true).Count(&stats.VerifiedInstructors)

	stats.BookingsByStatus = make(map[string]int64)
	statuses := []string{
		models.BookingStatusPending,
		models.BookingStatusConfirmed,
		models.BookingStatusCompleted,
		models.BookingStatusCancelled,
		models.BookingStatusNoShow,
	}
	for _, status := range statuses {
		var count int64
		h.db.Model(&models.Booking{}).Where("status = ?", status).Count(&count)
		stats.BookingsByStatus[status] = count
	}

	weekStart := time.Now().AddDate(0, 0, -7)
	h.db.Model(&models.Booking{}).
		Where("date >= ? AND status IN ?", weekStart, []string{models.BookingStatusConfirmed, models.BookingStatusCompleted}).
		Count(&stats.LessonsThisWeek)

	// Revenue comes from recorded transactions, not booking totals, so
	// unpaid bookings never inflate the numbers
	h.db.Model(&models.Transaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&stats.TotalRevenue)

	monthStart := time.Now().AddDate(0, -1, 0)
	h.db.Model(&models.Transaction{}).
		Where("created_at >= ?", monthStart).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&stats.RevenueThisMonth)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
