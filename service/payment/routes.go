package payment

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bookingguru/drivelearn-server/cmd/models"
	"github.com/bookingguru/drivelearn-server/cmd/utils"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

// PaginatedResponse represents the standard paginated API response structure
type PaginatedResponse struct {
	Data       interface{}    `json:"data"`
	Pagination PaginationMeta `json:"pagination"`
	Error      string         `json:"error,omitempty"`
}

// PaginationMeta contains pagination metadata
type PaginationMeta struct {
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	TotalItems  int64 `json:"total_items"`
	TotalPages  int   `json:"total_pages"`
	HasPrevious bool  `json:"has_previous"`
	HasNext     bool  `json:"has_next"`
}

// PaystackInitResponse represents the Paystack initialize response structure
type PaystackInitResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

// PaystackWebhookEvent represents the webhook payload Paystack posts on
// charge events
type PaystackWebhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string  `json:"reference"`
		Amount    float64 `json:"amount"`
		Channel   string  `json:"channel"`
		Status    string  `json:"status"`
		Customer  struct {
			Email string `json:"email"`
		} `json:"customer"`
	} `json:"data"`
}

type PaymentHandler struct {
	db *gorm.DB
}

func NewPaymentHandler(db *gorm.DB) *PaymentHandler {
	return &PaymentHandler{db: db}
}

// RegisterRoutes registers payment-related routes with Gorilla Mux
func (h *PaymentHandler) RegisterRoutes(router *mux.Router) {
	paymentRouter := router.PathPrefix("/payments").Subrouter()

	paymentRouter.HandleFunc("/initialize", utils.AuthMiddleware(h.InitializePayment)).Methods("POST")
	paymentRouter.HandleFunc("/webhook", h.HandleWebhook).Methods("POST")

	transactionRouter := router.PathPrefix("/transactions").Subrouter()
	transactionRouter.HandleFunc("", utils.RequireRole(h.db, "admin")(h.GetTransactions)).Methods("GET")
	transactionRouter.HandleFunc("/user/{userId:[0-9]+}", utils.AuthMiddleware(h.GetUserTransactions)).Methods("GET")
}

// ParsePaginationParams extracts and validates pagination parameters from request
func ParsePaginationParams(r *http.Request) (int, int, error) {
	query := r.URL.Query()

	page := 1
	if query.Get("page") != "" {
		parsedPage, err := strconv.Atoi(query.Get("page"))
		if err != nil || parsedPage < 1 {
			return 0, 0, err
		}
		page = parsedPage
	}

	perPage := 10
	if query.Get("per_page") != "" {
		parsedPerPage, err := strconv.Atoi(query.Get("per_page"))
		if err != nil || parsedPerPage < 1 {
			return 0, 0, err
		}
		if parsedPerPage > 100 {
			perPage = 100
		} else {
			perPage = parsedPerPage
		}
	}

	return page, perPage, nil
}

// BookingReference builds the payment reference for a booking. The prefix
// lets the webhook route charges back to lessons.
func BookingReference(bookingID uint) string {
	return fmt.Sprintf("BKG-%d-%d", bookingID, time.Now().Unix())
}

// bookingIDFromReference parses the booking id out of a BKG- reference
func bookingIDFromReference(reference string) (uint, error) {
	if !strings.HasPrefix(reference, "BKG-") {
		return 0, fmt.Errorf("not a booking reference: %s", reference)
	}
	parts := strings.Split(reference, "-")
	if len(parts) != 3 {
		return 0, fmt.Errorf("malformed booking reference: %s", reference)
	}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed booking reference: %s", reference)
	}
	return uint(id), nil
}

// InitializePayment starts a Paystack checkout for a pending booking and
// returns the authorization URL to the client
func (h *PaymentHandler) InitializePayment(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var request struct {
		BookingID uint `json:"booking_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	callerID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var booking models.Booking
	if err := h.db.Preload("Student").First(&booking, request.BookingID).Error; err != nil {
		respondWithError(w, http.StatusNotFound, "Booking not found")
		return
	}

	if booking.StudentID != callerID {
		respondWithError(w, http.StatusForbidden, "You can only pay for your own bookings")
		return
	}

	if booking.PaymentStatus == models.PaymentStatusCompleted {
		respondWithError(w, http.StatusConflict, "Booking is already paid")
		return
	}

	if booking.Student == nil {
		respondWithError(w, http.StatusInternalServerError, "Booking has no student record")
		return
	}

	reference := BookingReference(booking.ID)

	// Paystack amounts are in the minor currency unit
	payload := map[string]interface{}{
		"email":     booking.Student.Email,
		"amount":    int64(math.Round(booking.Total * 100)),
		"reference": reference,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to build request")
		return
	}

	client := &http.Client{Timeout: 15 * time.Second}
	req, err := http.NewRequest("POST", "https://api.paystack.co/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to create request")
		return
	}
	req.Header.Set("Authorization", "Bearer "+os.Getenv("PAYSTACK_SECRET_KEY"))
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		respondWithError(w, http.StatusBadGateway, "Failed to connect to payment provider")
		return
	}
	defer resp.Body.Close()

	var initResp PaystackInitResponse
	if err := json.NewDecoder(resp.Body).Decode(&initResp); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to parse payment provider response")
		return
	}

	if !initResp.Status {
		log.Printf("Paystack initialize failed for booking %d: %s", booking.ID, initResp.Message)
		respondWithError(w, http.StatusBadGateway, "Payment initialization failed")
		return
	}

	// Remember the reference so the webhook can be matched back
	if err := h.db.Model(&booking).Update("payment_id", reference).Error; err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to record payment reference")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"authorization_url": initResp.Data.AuthorizationURL,
		"access_code":       initResp.Data.AccessCode,
		"reference":         reference,
	})
}

// HandleWebhook processes charge events from Paystack. On a successful
// charge it marks the booking paid, confirms it, and records a transaction.
func (h *PaymentHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Unable to read body", http.StatusBadRequest)
		return
	}

	if !validSignature(body, r.Header.Get("x-paystack-signature")) {
		log.Printf("Webhook rejected: bad signature")
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var event PaystackWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	// Only successful charges move bookings forward; everything else is
	// acknowledged and ignored
	if event.Event != "charge.success" || event.Data.Status != "success" {
		w.WriteHeader(http.StatusOK)
		return
	}

	bookingID, err := bookingIDFromReference(event.Data.Reference)
	if err != nil {
		log.Printf("Webhook with unrecognized reference %q: %v", event.Data.Reference, err)
		w.WriteHeader(http.StatusOK)
		return
	}

	tx := h.db.Begin()

	var booking models.Booking
	if err := tx.First(&booking, bookingID).Error; err != nil {
		tx.Rollback()
		log.Printf("Webhook for unknown booking %d", bookingID)
		w.WriteHeader(http.StatusOK)
		return
	}

	// Webhooks can be delivered more than once
	if booking.PaymentStatus == models.PaymentStatusCompleted {
		tx.Rollback()
		w.WriteHeader(http.StatusOK)
		return
	}

	updates := map[string]interface{}{
		"payment_status": models.PaymentStatusCompleted,
		"payment_id":     event.Data.Reference,
	}
	// Payment confirms a pending lesson; already-cancelled bookings keep
	// their status and the charge is left for support to refund
	if models.CanTransition(booking.Status, models.BookingStatusConfirmed) {
		updates["status"] = models.BookingStatusConfirmed
	}

	if err := tx.Model(&booking).Updates(updates).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Failed to update booking", http.StatusInternalServerError)
		return
	}

	transaction := models.Transaction{
		UserID:    booking.StudentID,
		BookingID: booking.ID,
		Amount:    event.Data.Amount / 100,
		Method:    event.Data.Channel,
		Purpose:   "Lesson Booking",
		Reference: event.Data.Reference,
	}
	if err := tx.Create(&transaction).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Failed to record transaction", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	log.Printf("Payment completed for booking %d (reference %s)", booking.ID, event.Data.Reference)
	w.WriteHeader(http.StatusOK)
}

// validSignature checks the webhook body against Paystack's HMAC-SHA512
// signature header
func validSignature(body []byte, signature string) bool {
	secret := os.Getenv("PAYMENT_WEBHOOK_SECRET")
	if secret == "" {
		secret = os.Getenv("PAYSTACK_SECRET_KEY")
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// GetTransactions handles retrieving transactions with various filters
func (h *PaymentHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	queryParams := r.URL.Query()
	query := h.db.Model(&models.Transaction{})

	if userIDStr := queryParams.Get("user_id"); userIDStr != "" {
		userID, err := strconv.ParseUint(userIDStr, 10, 32)
		if err == nil {
			query = query.Where("user_id = ?", userID)
		}
	}

	if method := queryParams.Get("method"); method != "" {
		query = query.Where("method = ?", method)
	}

	if purpose := queryParams.Get("purpose"); purpose != "" {
		query = query.Where("purpose LIKE ?", "%"+purpose+"%")
	}

	layout := "2006-01-02"
	if startDateStr := queryParams.Get("start_date"); startDateStr != "" {
		startDate, err := time.Parse(layout, startDateStr)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid start_date format. Use YYYY-MM-DD")
			return
		}
		query = query.Where("created_at >= ?", startDate)
	}
	if endDateStr := queryParams.Get("end_date"); endDateStr != "" {
		endDate, err := time.Parse(layout, endDateStr)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid end_date format. Use YYYY-MM-DD")
			return
		}
		// Add one day to include the end date fully
		query = query.Where("created_at < ?", endDate.Add(24*time.Hour))
	}

	page, perPage, err := ParsePaginationParams(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid pagination parameters")
		return
	}
	offset := (page - 1) * perPage

	var totalItems int64
	query.Count(&totalItems)

	var transactions []models.Transaction
	result := query.Order("created_at DESC").Limit(perPage).Offset(offset).Find(&transactions)
	if result.Error != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve transactions")
		return
	}

	totalPages := int(math.Ceil(float64(totalItems) / float64(perPage)))
	respondWithJSON(w, http.StatusOK, PaginatedResponse{
		Data: transactions,
		Pagination: PaginationMeta{
			CurrentPage: page,
			PerPage:     perPage,
			TotalItems:  totalItems,
			TotalPages:  totalPages,
			HasPrevious: page > 1,
			HasNext:     page < totalPages,
		},
	})
}

// GetUserTransactions lists the caller's own payment history
func (h *PaymentHandler) GetUserTransactions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	vars := mux.Vars(r)
	userID, err := strconv.ParseUint(vars["userId"], 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	callerID, err := utils.GetUserIDFromContext(r)
	if err != nil || callerID != uint(userID) {
		respondWithError(w, http.StatusForbidden, "Insufficient permissions")
		return
	}

	page, perPage, err := ParsePaginationParams(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid pagination parameters")
		return
	}

	query := h.db.Model(&models.Transaction{}).Where("user_id = ?", userID)

	var totalItems int64
	query.Count(&totalItems)

	var transactions []models.Transaction
	if err := query.Order("created_at DESC").
		Limit(perPage).Offset((page - 1) * perPage).
		Find(&transactions).Error; err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve transactions")
		return
	}

	totalPages := int(math.Ceil(float64(totalItems) / float64(perPage)))
	respondWithJSON(w, http.StatusOK, PaginatedResponse{
		Data: transactions,
		Pagination: PaginationMeta{
			CurrentPage: page,
			PerPage:     perPage,
			TotalItems:  totalItems,
			TotalPages:  totalPages,
			HasPrevious: page > 1,
			HasNext:     page < totalPages,
		},
	})
}

// Helper function to respond with an error
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, PaginatedResponse{Error: message})
}

// Helper function to respond with JSON
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
