package notification

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/bookingguru/drivelearn-server/cmd/models"
	"github.com/bookingguru/drivelearn-server/cmd/utils"
	"github.com/gorilla/mux"
	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"gorm.io/gorm"
)

// NotificationHandler handles push notification operations
type NotificationHandler struct {
	db         *gorm.DB
	expoClient *expo.PushClient
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(db *gorm.DB) *NotificationHandler {
	return &NotificationHandler{
		db:         db,
		expoClient: expo.NewPushClient(nil),
	}
}

// RegisterRoutes registers all notification routes
func (h *NotificationHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/devices", utils.AuthMiddleware(h.RegisterDevice)).Methods("POST")
	router.HandleFunc("/devices/{id:[0-9]+}", utils.AuthMiddleware(h.DeleteDevice)).Methods("DELETE")
	router.HandleFunc("/notifications", utils.RequireRole(h.db, "admin")(h.SendNotification)).Methods("POST")
	router.HandleFunc("/notifications/broadcast", utils.RequireRole(h.db, "admin")(h.BroadcastNotification)).Methods("POST")
	router.HandleFunc("/users/{userId:[0-9]+}/devices", utils.AuthMiddleware(h.GetUserDevices)).Methods("GET")
	router.HandleFunc("/users/{userId:[0-9]+}/history", utils.AuthMiddleware(h.GetUserNotificationHistory)).Methods("GET")
	router.HandleFunc("/bookings/{bookingId:[0-9]+}/remind", utils.AuthMiddleware(h.SendBookingReminder)).Methods("POST")
}

// RegisterDevice registers the caller's device for push notifications
func (h *NotificationHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	callerID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var device models.Device
	if err := json.NewDecoder(r.Body).Decode(&device); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if device.Token == "" {
		http.Error(w, "Token is required", http.StatusBadRequest)
		return
	}

	// Validate the Expo push token format
	if _, err := expo.NewExponentPushToken(device.Token); err != nil {
		http.Error(w, "Invalid Expo push token format", http.StatusBadRequest)
		return
	}

	device.UserID = callerID

	// Re-registering the same token just refreshes its metadata
	var existingDevice models.Device
	result := h.db.Where("token = ? AND user_id = ?", device.Token, device.UserID).First(&existingDevice)

	if result.Error == nil {
		existingDevice.UpdatedAt = time.Now()
		existingDevice.DeviceType = device.DeviceType
		existingDevice.DeviceName = device.DeviceName
		if err := h.db.Save(&existingDevice).Error; err != nil {
			http.Error(w, "Error updating device", http.StatusInternalServerError)
			return
		}
		device = existingDevice
	} else {
		if err := h.db.Create(&device).Error; err != nil {
			http.Error(w, "Error creating device", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Device registered successfully",
		"device":  device,
	})
}

// GetUserDevices gets all devices for a specific user
func (h *NotificationHandler) GetUserDevices(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := strconv.ParseUint(vars["userId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	callerID, err := utils.GetUserIDFromContext(r)
	if err != nil || callerID != uint(userID) {
		http.Error(w, "Insufficient permissions", http.StatusForbidden)
		return
	}

	var devices []models.Device
	if err := h.db.Where("user_id = ?", userID).Find(&devices).Error; err != nil {
		http.Error(w, "Error retrieving devices", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(devices)
}

// SendNotification sends a push notification to a specific device
func (h *NotificationHandler) SendNotification(w http.ResponseWriter, r *http.Request) {
	var req models.NotificationRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Token == "" || req.Title == "" || req.Body == "" {
		http.Error(w, "Token, title and body are required", http.StatusBadRequest)
		return
	}

	var device models.Device
	if err := h.db.Where("token = ?", req.Token).First(&device).Error; err != nil {
		http.Error(w, "Device not found", http.StatusNotFound)
		return
	}

	success, err := h.sendExpoNotification([]string{req.Token}, req.Title, req.Body, req.Data)

	h.recordHistory(device.UserID, req.Title, req.Body, req.Data, success && err == nil)

	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": success,
		"message": "Notification sent",
	})
}

// SendBookingReminder pushes a lesson reminder to both parties of a booking
func (h *NotificationHandler) SendBookingReminder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bookingID, err := strconv.ParseUint(vars["bookingId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid booking ID", http.StatusBadRequest)
		return
	}

	var booking models.Booking
	if err := h.db.Preload("Instructor").First(&booking, bookingID).Error; err != nil {
		http.Error(w, "Booking not found", http.StatusNotFound)
		return
	}

	if booking.Status != models.BookingStatusConfirmed {
		http.Error(w, "Only confirmed lessons can be reminded", http.StatusBadRequest)
		return
	}

	recipients := []uint{booking.StudentID}
	if booking.Instructor != nil {
		recipients = append(recipients, booking.Instructor.UserID)
	}

	title := "Upcoming driving lesson"
	body := fmt.Sprintf("Lesson on %s at %s", booking.Date.Format("2006-01-02"), booking.StartTime)
	data := map[string]interface{}{"booking_id": booking.ID}

	sent := 0
	for _, userID := range recipients {
		var devices []models.Device
		if err := h.db.Where("user_id = ?", userID).Find(&devices).Error; err != nil {
			continue
		}
		var tokens []string
		for _, device := range devices {
			tokens = append(tokens, device.Token)
		}
		if len(tokens) == 0 {
			continue
		}

		success, err := h.sendExpoNotification(tokens, title, body, data)
		h.recordHistory(userID, title, body, data, success && err == nil)
		if success && err == nil {
			sent += len(tokens)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": fmt.Sprintf("Reminder sent to %d devices", sent),
	})
}

// BroadcastNotification sends a notification to multiple users or all users
func (h *NotificationHandler) BroadcastNotification(w http.ResponseWriter, r *http.Request) {
	var req models.BroadcastRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Title == "" || req.Body == "" {
		http.Error(w, "Title and body are required", http.StatusBadRequest)
		return
	}

	var devices []models.Device
	query := h.db

	if len(req.UserIDs) > 0 {
		query = query.Where("user_id IN ?", req.UserIDs)
	}

	if err := query.Find(&devices).Error; err != nil {
		http.Error(w, "Error retrieving devices", http.StatusInternalServerError)
		return
	}

	if len(devices) == 0 {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"message": "No devices found for notification",
		})
		return
	}

	var tokens []string
	userMap := make(map[uint]bool)
	for _, device := range devices {
		tokens = append(tokens, device.Token)
		userMap[device.UserID] = true
	}

	// The SDK handles batching internally
	success, err := h.sendExpoNotification(tokens, req.Title, req.Body, req.Data)

	for userID := range userMap {
		h.recordHistory(userID, req.Title, req.Body, req.Data, success && err == nil)
	}

	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": success,
		"message": fmt.Sprintf("Broadcast sent to %d devices", len(tokens)),
	})
}

// GetUserNotificationHistory gets notification history for a specific user
func (h *NotificationHandler) GetUserNotificationHistory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := strconv.ParseUint(vars["userId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	callerID, err := utils.GetUserIDFromContext(r)
	if err != nil || callerID != uint(userID) {
		http.Error(w, "Insufficient permissions", http.StatusForbidden)
		return
	}

	limit := 20
	page := 1
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsedLimit, err := strconv.Atoi(limitParam); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}
	if pageParam := r.URL.Query().Get("page"); pageParam != "" {
		if parsedPage, err := strconv.Atoi(pageParam); err == nil && parsedPage > 0 {
			page = parsedPage
		}
	}
	offset := (page - 1) * limit

	var history []models.NotificationHistory
	var count int64

	if err := h.db.Model(&models.NotificationHistory{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		http.Error(w, "Error counting notifications", http.StatusInternalServerError)
		return
	}

	if err := h.db.Where("user_id = ?", userID).
		Order("sent_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&history).Error; err != nil {
		http.Error(w, "Error retrieving notification history", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"total":   count,
		"page":    page,
		"limit":   limit,
		"history": history,
	})
}

// DeleteDevice deletes a device token
func (h *NotificationHandler) DeleteDevice(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	deviceID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid device ID", http.StatusBadRequest)
		return
	}

	callerID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var device models.Device
	if err := h.db.First(&device, deviceID).Error; err != nil {
		http.Error(w, "Device not found", http.StatusNotFound)
		return
	}

	if device.UserID != callerID {
		http.Error(w, "Insufficient permissions", http.StatusForbidden)
		return
	}

	if err := h.db.Delete(&device).Error; err != nil {
		http.Error(w, "Error deleting device", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Device deleted successfully",
	})
}

// recordHistory logs a notification attempt; failures here never fail the request
func (h *NotificationHandler) recordHistory(userID uint, title, body string, data map[string]interface{}, sent bool) {
	status := "sent"
	if !sent {
		status = "failed"
	}

	dataJSON, _ := json.Marshal(data)

	history := models.NotificationHistory{
		UserID: userID,
		Title:  title,
		Body:   body,
		Data:   string(dataJSON),
		Status: status,
		SentAt: time.Now(),
	}

	if err := h.db.Create(&history).Error; err != nil {
		log.Printf("Error creating notification history for user %d: %v", userID, err)
	}
}

// sendExpoNotification sends push notifications using the Expo SDK
func (h *NotificationHandler) sendExpoNotification(tokenStrings []string, title, body string, data map[string]interface{}) (bool, error) {
	var validTokens []expo.ExponentPushToken
	var invalidTokens []string

	for _, tokenString := range tokenStrings {
		pushToken, err := expo.NewExponentPushToken(tokenString)
		if err != nil {
			log.Printf("Invalid push token format %s: %v", tokenString, err)
			invalidTokens = append(invalidTokens, tokenString)
			continue
		}
		validTokens = append(validTokens, pushToken)
	}

	if len(validTokens) == 0 {
		return false, fmt.Errorf("no valid push tokens found")
	}

	var stringData map[string]string
	if data != nil {
		stringData = make(map[string]string)
		for key, value := range data {
			stringData[key] = fmt.Sprintf("%v", value)
		}
	}

	pushMessage := &expo.PushMessage{
		To:       validTokens,
		Body:     body,
		Title:    title,
		Sound:    "default",
		Priority: expo.DefaultPriority,
		Data:     stringData,
	}

	response, err := h.expoClient.Publish(pushMessage)
	if err != nil {
		return false, fmt.Errorf("failed to publish notification: %v", err)
	}

	if validationErr := response.ValidateResponse(); validationErr != nil {
		log.Printf("Push notification validation error: %v", validationErr)
		h.cleanupInvalidTokens(invalidTokens)
		return false, fmt.Errorf("notification validation failed: %v", validationErr)
	}

	if len(invalidTokens) > 0 {
		h.cleanupInvalidTokens(invalidTokens)
	}

	return true, nil
}

// cleanupInvalidTokens removes tokens Expo rejected so they are not retried
func (h *NotificationHandler) cleanupInvalidTokens(tokens []string) {
	for _, token := range tokens {
		if err := h.db.Where("token = ?", token).Delete(&models.Device{}).Error; err != nil {
			log.Printf("Error cleaning up invalid token %s: %v", token, err)
		}
	}
}
