package api

import (
	"log"
	"net/http"

	"github.com/bookingguru/drivelearn-server/service/availability"
	"github.com/bookingguru/drivelearn-server/service/booking"
	"github.com/bookingguru/drivelearn-server/service/dashboard"
	notification "github.com/bookingguru/drivelearn-server/service/notifications"
	"github.com/bookingguru/drivelearn-server/service/payment"
	"github.com/bookingguru/drivelearn-server/service/review"
	"github.com/bookingguru/drivelearn-server/service/user"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type APIServer struct {
	address string
	db      *gorm.DB
}

func NewApiServer(address string, db *gorm.DB) *APIServer {
	return &APIServer{
		address: address,
		db:      db,
	}
}

func (s *APIServer) Run() error {
	router := mux.NewRouter()
	subrouter := router.PathPrefix("/api/v1").Subrouter()

	userHandler := user.NewHandler(s.db)
	userHandler.RegisterRoutes(subrouter)

	bookingHandler := booking.NewBookingHandler(s.db)
	bookingHandler.RegisterRoutes(subrouter)

	availabilityHandler := availability.NewAvailabilityHandler(s.db)
	availabilityHandler.RegisterRoutes(subrouter)

	reviewHandler := review.NewReviewHandler(s.db)
	reviewHandler.RegisterRoutes(subrouter)

	paymentHandler := payment.NewPaymentHandler(s.db)
	paymentHandler.RegisterRoutes(subrouter)

	dashboardHandler := dashboard.NewDashboardHandler(s.db)
	dashboardHandler.RegisterRoutes(subrouter)

	notificationHandler := notification.NewNotificationHandler(s.db)
	notificationHandler.RegisterRoutes(subrouter)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "x-paystack-signature"}),
	)

	log.Println("Server running at", s.address)
	return http.ListenAndServe(s.address, handlers.LoggingHandler(logWriter{}, cors(router)))
}

// logWriter feeds gorilla's access log lines into the standard logger
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	log.Print(string(p))
	return len(p), nil
}
