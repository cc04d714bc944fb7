package user

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"gopkg.in/gomail.v2"

	"github.com/GetStream/stream-chat-go/v5"
	"github.com/bookingguru/drivelearn-server/cmd/models"
	"github.com/bookingguru/drivelearn-server/cmd/utils"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}


// RegisterRoutes sets up all user- and instructor-related routes
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/login", h.handleLogin).Methods("POST")
	router.HandleFunc("/register", h.HandleRegister).Methods("POST")
	router.HandleFunc("/users", utils.RequireRole(h.db, "admin")(h.GetUsers)).Methods("GET")
	router.HandleFunc("/users/{id}", h.GetUser).Methods("GET")
	router.HandleFunc("/users/{id}", utils.AuthMiddleware(h.UpdateUser)).Methods("PUT")
	router.HandleFunc("/users/{id}", utils.RequireRole(h.db, "admin")(h.DeleteUser)).Methods("DELETE")
	router.HandleFunc("/users/{id}/profile-picture", utils.AuthMiddleware(h.UploadProfilePicture)).Methods("POST")
	router.HandleFunc("/user/verify", h.verifyUser).Methods("POST")
	router.HandleFunc("/refresh", h.handleRefreshToken).Methods("POST")
	router.HandleFunc("/reset-password", h.handlePasswordResetRequest).Methods("POST")
	router.HandleFunc("/reset-password/{userId}/confirm", h.handlePasswordReset).Methods("POST")
	router.HandleFunc("/verify-reset-token", h.handleVerifyResetToken).Methods("POST")
	router.HandleFunc("/instructors", h.GetInstructors).Methods("GET")
	router.HandleFunc("/instructors/search", h.SearchInstructors).Methods("GET")
	router.HandleFunc("/instructors/{id:[0-9]+}", h.GetInstructor).Methods("GET")
	router.HandleFunc("/instructors/{id:[0-9]+}", utils.AuthMiddleware(h.UpdateInstructor)).Methods("PUT")
	router.HandleFunc("/instructors/verify/{id}", utils.RequireRole(h.db, "admin")(h.VerifyInstructor)).Methods("POST")
	router.HandleFunc("/images/{filename}", h.ServeImage).Methods("GET")
}


func (h *Handler) ServeImage(w http.ResponseWriter, r *http.Request) {
    vars := mux.Vars(r)
    filename := vars["filename"]

    // Basic security check for directory traversal
    if containsDotDot(filename) {
        http.Error(w, "Invalid path", http.StatusBadRequest)
        return
    }

    imagePath := filepath.Join("uploads/images", filepath.Clean(filename))

    if _, err := os.Stat(imagePath); os.IsNotExist(err) {
        http.Error(w, "Image not found", http.StatusNotFound)
        return
    }

    w.Header().Set("Cache-Control", "public, max-age=3600")
    w.Header().Set("Content-Type", getContentType(imagePath))

    http.ServeFile(w, r, imagePath)
}

func containsDotDot(v string) bool {
    if !filepath.IsAbs(v) {
        v = filepath.Clean(filepath.Join("/", v))
    }
    return filepath.Clean(v) != v
}

// Helper function to determine content type
func getContentType(filename string) string {
    ext := filepath.Ext(filename)
    switch ext {
    case ".jpg", ".jpeg":
        return "image/jpeg"
    case ".png":
        return "image/png"
    case ".gif":
        return "image/gif"
    case ".webp":
        return "image/webp"
    default:
        return "application/octet-stream"
    }
}


func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
    var loginRequest struct {
        Email    string `json:"email"`
        Password string `json:"password"`
    }

    if err := json.NewDecoder(r.Body).Decode(&loginRequest); err != nil {
        http.Error(w, "Invalid request body", http.StatusBadRequest)
        return
    }

    var user models.User
    result := h.db.Where("email = ?", loginRequest.Email).First(&user)
    if result.Error != nil {
        http.Error(w, "Invalid credentials", http.StatusUnauthorized)
        return
    }

    // Verify password
    if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(loginRequest.Password)); err != nil {
        http.Error(w, "Invalid credentials", http.StatusUnauthorized)
        return
    }

    accessToken, err := generateJWT(user.ID, 60)
    if err != nil {
        http.Error(w, "Error generating access token", http.StatusInternalServerError)
        return
    }

    refreshToken, err := generateRefreshToken(user.ID)
    if err != nil {
        http.Error(w, "Error generating refresh token", http.StatusInternalServerError)
        return
    }

    if err := saveRefreshToken(h.db, user.ID, refreshToken); err != nil {
        http.Error(w, "Error saving refresh token", http.StatusInternalServerError)
        return
    }

    response := map[string]interface{}{
        "message":       "Login successful",
        "access_token":  accessToken,
        "refresh_token": refreshToken,
        "user_id":       user.ID,
        "role":          user.Role,
    }

    // Stream Chat powers the in-app student/instructor messaging; hand the
    // client a chat token alongside the API tokens.
    streamToken, err := generateStreamToken(user.ID)
    if err != nil {
        log.Printf("Error generating Stream token for user %d: %v", user.ID, err)
    } else {
        response["stream_token"] = streamToken
    }

    // If the user is an instructor, include their instructor profile id
    if user.Role == "instructor" {
        var instructor models.Instructor
        result := h.db.Where("user_id = ?", user.ID).First(&instructor)
        if result.Error == nil {
            response["instructor_id"] = instructor.ID
        } else if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
            http.Error(w, "Error fetching instructor profile", http.StatusInternalServerError)
            return
        }
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(response)
}

func generateStreamToken(userID uint) (string, error) {
    apiKey := os.Getenv("STREAM_API_KEY")
    apiSecret := os.Getenv("STREAM_API_SECRET")
    streamClient, err := stream_chat.NewClient(apiKey, apiSecret)
    if err != nil {
        return "", err
    }
    return streamClient.CreateToken(fmt.Sprintf("%d", userID), time.Now().Add(time.Hour*24*365))
}


func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
    var registerRequest struct {
        FullName      string  `json:"full_name"`
        Email         string  `json:"email"`
        Password      string  `json:"password"`
        Phone         string  `json:"phone"`
        Role          string  `json:"role"`
        Bio           string  `json:"bio"`
        HourlyRate    float64 `json:"hourly_rate"`
        VehicleType   string  `json:"vehicle_type"`
        Transmission  string  `json:"transmission"`
        ServiceArea   string  `json:"service_area"`
        LicenseNumber string  `json:"license_number"`
    }
    if err := json.NewDecoder(r.Body).Decode(&registerRequest); err != nil {
        http.Error(w, "Invalid JSON input", http.StatusBadRequest)
        return
    }

    // Validate required fields
    if registerRequest.FullName == "" || registerRequest.Email == "" || registerRequest.Password == "" || registerRequest.Phone == "" || registerRequest.Role == "" {
        http.Error(w, "Missing required fields", http.StatusBadRequest)
        return
    }
    if registerRequest.Role != "student" && registerRequest.Role != "instructor" {
        http.Error(w, "Role must be student or instructor", http.StatusBadRequest)
        return
    }
    if registerRequest.Role == "instructor" && registerRequest.HourlyRate <= 0 {
        http.Error(w, "Instructors must set an hourly rate", http.StatusBadRequest)
        return
    }

    // Validate unique constraints
    var existingUser models.User
    if result := h.db.Where("email = ? OR phone = ?", registerRequest.Email, registerRequest.Phone).First(&existingUser); !errors.Is(result.Error, gorm.ErrRecordNotFound) {
        if result.Error != nil {
            http.Error(w, "Database error", http.StatusInternalServerError)
            return
        }

        var errorMessage string
        if existingUser.Email == registerRequest.Email && existingUser.Phone == registerRequest.Phone {
            errorMessage = "Email and phone number are already in use"
        } else if existingUser.Email == registerRequest.Email {
            errorMessage = "Email is already in use"
        } else {
            errorMessage = "Phone number is already in use"
        }
        log.Printf("Registration attempt with duplicate %s", errorMessage)
        http.Error(w, errorMessage, http.StatusConflict)
        return
    }

    // Hash password
    passwordHash, err := bcrypt.GenerateFromPassword([]byte(registerRequest.Password), bcrypt.DefaultCost)
    if err != nil {
        http.Error(w, "Error hashing password", http.StatusInternalServerError)
        return
    }

    // Generate verification code
    verificationCode, err := randomDigits(6)
    if err != nil {
        http.Error(w, "Error generating verification code", http.StatusInternalServerError)
        return
    }
    verificationExpiry := time.Now().Add(15 * time.Minute)

    tx := h.db.Begin()

    user := models.User{
        FullName:              registerRequest.FullName,
        Email:                 registerRequest.Email,
        PasswordHash:          string(passwordHash),
        Phone:                 registerRequest.Phone,
        Role:                  registerRequest.Role,
        PhoneVerified:         false,
        EmailVerificationCode: verificationCode,
        VerificationExpiry:    verificationExpiry,
    }

    if err := tx.Create(&user).Error; err != nil {
        if strings.Contains(err.Error(), "UNIQUE constraint") || strings.Contains(err.Error(), "duplicate key") {
            log.Printf("Unique constraint violation during user creation: %v", err)
            tx.Rollback()
            http.Error(w, "Email or phone number is already in use", http.StatusConflict)
            return
        }
        tx.Rollback()
        http.Error(w, "Error registering user", http.StatusInternalServerError)
        return
    }

    var instructorID uint
    if registerRequest.Role == "instructor" {
        instructor := models.Instructor{
            UserID:        user.ID,
            Bio:           registerRequest.Bio,
            HourlyRate:    registerRequest.HourlyRate,
            VehicleType:   registerRequest.VehicleType,
            Transmission:  registerRequest.Transmission,
            ServiceArea:   registerRequest.ServiceArea,
            LicenseNumber: registerRequest.LicenseNumber,
        }

        if err := tx.Create(&instructor).Error; err != nil {
            tx.Rollback()
            http.Error(w, "Error creating instructor profile", http.StatusInternalServerError)
            return
        }

        instructorID = instructor.ID
    }

    if err := tx.Commit().Error; err != nil {
        http.Error(w, "Error committing transaction", http.StatusInternalServerError)
        return
    }

    // Send verification email
    go func() {
        if err := sendVerificationEmail(user.Email, verificationCode); err != nil {
            log.Printf("Error sending verification email: %v", err)
        }
    }()

    w.Header().Set("Content-Type", "application/json")
    response := map[string]interface{}{
        "message": "User registered successfully. Please check your email for verification code.",
        "user_id": user.ID,
    }
    if instructorID != 0 {
        response["instructor_id"] = instructorID
    }
    json.NewEncoder(w).Encode(response)
}


// randomDigits returns a string of n random decimal digits.
func randomDigits(n int) (string, error) {
    max := big.NewInt(1)
    for i := 0; i < n; i++ {
        max.Mul(max, big.NewInt(10))
    }
    v, err := rand.Int(rand.Reader, max)
    if err != nil {
        return "", err
    }
    return fmt.Sprintf("%0*d", n, v), nil
}


// sendVerificationEmail sends a verification email with the 6-digit code
func sendVerificationEmail(email, code string) error {
	smtpHost := os.Getenv("SMTP_HOST")
	smtpPort := os.Getenv("SMTP_PORT")
	smtpUser := os.Getenv("SMTP_USER")
	smtpPass := os.Getenv("SMTP_PASS")

	m := gomail.NewMessage()
	m.SetHeader("From", smtpUser)
	m.SetHeader("To", email)
	m.SetHeader("Subject", "Email Verification Code")
	m.SetBody("text/plain", fmt.Sprintf("Your verification code is: %s. Ignore this email if you did not request a verification code.", code))

	port, err := strconv.Atoi(smtpPort)
	if err != nil {
		return fmt.Errorf("invalid SMTP port: %v", err)
	}
	d := gomail.NewDialer(smtpHost, port, smtpUser, smtpPass)

	return d.DialAndSend(m)
}


func (h *Handler) verifyUser(w http.ResponseWriter, r *http.Request) {
    var request struct {
        Email string `json:"email"`
        Code  string `json:"code"`
    }

    if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
        http.Error(w, "Invalid request body", http.StatusBadRequest)
        return
    }

    var user models.User
    if err := h.db.Where("email = ?", request.Email).First(&user).Error; err != nil {
        http.Error(w, "User not found", http.StatusNotFound)
        return
    }

    // Check if the code matches and is not expired
    if user.EmailVerificationCode != request.Code || time.Now().After(user.VerificationExpiry) {
        http.Error(w, "Invalid or expired verification code", http.StatusUnauthorized)
        return
    }

    user.EmailVerified = true
    user.EmailVerificationCode = ""
    user.VerificationExpiry = time.Time{}
    user.Status = "active"

    if err := h.db.Save(&user).Error; err != nil {
        http.Error(w, "Error updating user", http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]string{
        "message": "Email verified successfully",
    })
}


// GetUsers retrieves all users
func (h *Handler) GetUsers(w http.ResponseWriter, r *http.Request) {
	var users []models.User
	result := h.db.Find(&users)
	if result.Error != nil {
		http.Error(w, "Error retrieving users", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(users)
}

// GetUser retrieves a specific user by ID
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	var user models.User
	result := h.db.Preload("Instructor").First(&user, userID)
	if result.Error != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

// UpdateUser updates user information
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	// Callers may only edit their own account
	callerID, err := utils.GetUserIDFromContext(r)
	if err != nil || callerID != uint(userID) {
		http.Error(w, "Insufficient permissions", http.StatusForbidden)
		return
	}

	var updateData struct {
		FullName          string `json:"full_name"`
		Phone             string `json:"phone"`
		ProfilePictureURL string `json:"profile_picture_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&updateData); err != nil {
		http.Error(w, "Invalid JSON input", http.StatusBadRequest)
		return
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	// Update fields
	if updateData.FullName != "" {
		user.FullName = updateData.FullName
	}
	if updateData.Phone != "" {
		user.Phone = updateData.Phone
	}
	if updateData.ProfilePictureURL != "" {
		user.ProfilePicturePath = updateData.ProfilePictureURL
	}

	if err := h.db.Save(&user).Error; err != nil {
		http.Error(w, "Error updating user", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

// UploadProfilePicture stores a new profile image and records its path
func (h *Handler) UploadProfilePicture(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	callerID, err := utils.GetUserIDFromContext(r)
	if err != nil || callerID != uint(userID) {
		http.Error(w, "Insufficient permissions", http.StatusForbidden)
		return
	}

	if err := r.ParseMultipartForm(utils.MaxImageSize); err != nil {
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "Image file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	imageURL, err := utils.SaveImage(file, header)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Replace any previous picture
	if user.ProfilePicturePath != "" {
		if err := utils.DeleteImage(user.ProfilePicturePath); err != nil {
			log.Printf("Error deleting old profile picture for user %d: %v", user.ID, err)
		}
	}

	user.ProfilePicturePath = imageURL
	if err := h.db.Save(&user).Error; err != nil {
		http.Error(w, "Error updating user", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message":              "Profile picture updated successfully",
		"profile_picture_path": imageURL,
	})
}

// DeleteUser removes a user
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	result := h.db.Delete(&models.User{}, userID)
	if result.Error != nil {
		http.Error(w, "Error deleting user", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "User deleted successfully",
	})
}

func (h *Handler) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
    logger := log.New(os.Stdout, "RefreshToken: ", log.Ldate|log.Ltime|log.Lshortfile)

    var refreshRequest struct {
        RefreshToken string `json:"refresh_token"`
    }

    if err := json.NewDecoder(r.Body).Decode(&refreshRequest); err != nil {
        logger.Printf("Decoding error: %v", err)
        http.Error(w, "Invalid request", http.StatusBadRequest)
        return
    }

    tx := h.db.Begin()

    // Validate refresh token against stored token in database
    var user models.User
    if err := tx.Where("refresh_token = ?", refreshRequest.RefreshToken).First(&user).Error; err != nil {
        tx.Rollback()
        logger.Printf("Invalid refresh token")
        http.Error(w, "Invalid refresh token", http.StatusUnauthorized)
        return
    }

    if user.RefreshTokenExpiredAt.Before(time.Now()) {
        tx.Rollback()
        logger.Printf("Expired refresh token for user ID: %d", user.ID)
        http.Error(w, "Refresh token expired", http.StatusUnauthorized)
        return
    }

    newAccessToken, err := generateJWT(user.ID, 60)
    if err != nil {
        tx.Rollback()
        logger.Printf("Failed to generate access token for user ID: %d, error: %v", user.ID, err)
        http.Error(w, "Error generating new token", http.StatusInternalServerError)
        return
    }

    // Rotate the refresh token
    newRefreshToken, err := generateRefreshToken(user.ID)
    if err != nil {
        tx.Rollback()
        logger.Printf("Failed to generate refresh token for user ID: %d, error: %v", user.ID, err)
        http.Error(w, "Error generating refresh token", http.StatusInternalServerError)
        return
    }

    updateResult := tx.Model(&user).Updates(models.User{
        Refresh:               newRefreshToken,
        RefreshTokenExpiredAt: time.Now().Add(30 * 24 * time.Hour),
    })

    if updateResult.Error != nil {
        tx.Rollback()
        logger.Printf("Failed to update refresh token for user ID: %d, error: %v", user.ID, updateResult.Error)
        http.Error(w, "Error updating refresh token", http.StatusInternalServerError)
        return
    }

    if err := tx.Commit().Error; err != nil {
        logger.Printf("Transaction commit error: %v", err)
        http.Error(w, "Internal server error", http.StatusInternalServerError)
        return
    }

    logger.Printf("Successful token refresh for user ID: %d", user.ID)

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]string{
        "access_token":  newAccessToken,
        "refresh_token": newRefreshToken,
    })
}


func generateJWT(userID uint, expirationMinutes int) (string, error) {
    claims := &jwt.RegisteredClaims{
        Subject:   fmt.Sprint(userID),
        ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute * time.Duration(expirationMinutes))),
    }
    token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    return token.SignedString([]byte(os.Getenv("SECRET_KEY")))
}


func generateRefreshToken(userID uint) (string, error) {
    // Generate cryptographically secure random bytes
    b := make([]byte, 32)
    _, err := rand.Read(b)
    if err != nil {
        return "", err
    }

    // Use HMAC to create a token that's tied to the user
    mac := hmac.New(sha256.New, []byte(os.Getenv("SECRET_KEY")))
    mac.Write([]byte(fmt.Sprintf("%d", userID)))
    mac.Write(b)

    signature := mac.Sum(nil)
    return fmt.Sprintf("%d_%x_%x", userID, b, signature), nil
}

func saveRefreshToken(db *gorm.DB, userID uint, refreshToken string) error {
    expirationTime := time.Now().Add(30 * 24 * time.Hour)
    return db.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
        "refresh_token":            refreshToken,
        "refresh_token_expired_at": expirationTime,
    }).Error
}


func (h *Handler) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
    var resetRequest struct {
        Email string `json:"email"`
    }

    if err := json.NewDecoder(r.Body).Decode(&resetRequest); err != nil {
        http.Error(w, "Invalid request body", http.StatusBadRequest)
        return
    }

    if resetRequest.Email == "" {
        http.Error(w, "Email is required", http.StatusBadRequest)
        return
    }

    var user models.User
    result := h.db.Where("email = ?", resetRequest.Email).First(&user)
    if result.Error != nil {
        // Keep response vague for security
        w.Header().Set("Content-Type", "application/json")
        json.NewEncoder(w).Encode(map[string]string{
            "message": "If an account exists, a reset code will be sent to your email",
        })
        return
    }

    resetToken, err := randomDigits(6)
    if err != nil {
        http.Error(w, "Error generating reset code", http.StatusInternalServerError)
        return
    }

    tx := h.db.Begin()

    // Delete any existing reset tokens for this user
    if err := tx.Where("user_id = ?", user.ID).Delete(&models.PasswordResetToken{}).Error; err != nil {
        tx.Rollback()
        http.Error(w, "Error preparing reset", http.StatusInternalServerError)
        return
    }

    token := models.PasswordResetToken{
        UserID:    user.ID,
        Token:     resetToken,
        ExpiresAt: time.Now().Add(15 * time.Minute),
    }
    if err := tx.Create(&token).Error; err != nil {
        tx.Rollback()
        http.Error(w, "Error creating reset token", http.StatusInternalServerError)
        return
    }

    if err := tx.Commit().Error; err != nil {
        http.Error(w, "Internal server error", http.StatusInternalServerError)
        return
    }

    go func() {
        if err := sendPasswordResetEmail(user.Email, resetToken); err != nil {
            log.Printf("Error sending password reset email: %v", err)
        }
    }()

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]string{
        "message": "If an account exists, a reset code will be sent to your email",
        "user_id": fmt.Sprint(user.ID),
    })
}

func sendPasswordResetEmail(email, code string) error {
	smtpHost := os.Getenv("SMTP_HOST")
	smtpPort := os.Getenv("SMTP_PORT")
	smtpUser := os.Getenv("SMTP_USER")
	smtpPass := os.Getenv("SMTP_PASS")

	m := gomail.NewMessage()
	m.SetHeader("From", smtpUser)
	m.SetHeader("To", email)
	m.SetHeader("Subject", "Password Reset Code")
	m.SetBody("text/plain", fmt.Sprintf("Your password reset code is: %s. It expires in 15 minutes. Ignore this email if you did not request a reset.", code))

	port, err := strconv.Atoi(smtpPort)
	if err != nil {
		return fmt.Errorf("invalid SMTP port: %v", err)
	}
	d := gomail.NewDialer(smtpHost, port, smtpUser, smtpPass)

	return d.DialAndSend(m)
}

func (h *Handler) handleVerifyResetToken(w http.ResponseWriter, r *http.Request) {
    var request struct {
        UserID uint   `json:"user_id"`
        Token  string `json:"token"`
    }

    if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
        http.Error(w, "Invalid request body", http.StatusBadRequest)
        return
    }

    var resetToken models.PasswordResetToken
    if err := h.db.Where("user_id = ? AND token = ?", request.UserID, request.Token).First(&resetToken).Error; err != nil {
        http.Error(w, "Invalid reset code", http.StatusUnauthorized)
        return
    }

    if time.Now().After(resetToken.ExpiresAt) {
        http.Error(w, "Reset code expired", http.StatusUnauthorized)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]string{
        "message": "Reset code verified",
    })
}

func (h *Handler) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
    vars := mux.Vars(r)
    userID, err := strconv.ParseUint(vars["userId"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid user ID", http.StatusBadRequest)
        return
    }

    var request struct {
        Token       string `json:"token"`
        NewPassword string `json:"new_password"`
    }
    if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
        http.Error(w, "Invalid request body", http.StatusBadRequest)
        return
    }

    if request.NewPassword == "" {
        http.Error(w, "New password is required", http.StatusBadRequest)
        return
    }

    var resetToken models.PasswordResetToken
    if err := h.db.Where("user_id = ? AND token = ?", userID, request.Token).First(&resetToken).Error; err != nil {
        http.Error(w, "Invalid reset code", http.StatusUnauthorized)
        return
    }

    if time.Now().After(resetToken.ExpiresAt) {
        http.Error(w, "Reset code expired", http.StatusUnauthorized)
        return
    }

    passwordHash, err := bcrypt.GenerateFromPassword([]byte(request.NewPassword), bcrypt.DefaultCost)
    if err != nil {
        http.Error(w, "Error hashing password", http.StatusInternalServerError)
        return
    }

    tx := h.db.Begin()

    if err := tx.Model(&models.User{}).Where("id = ?", userID).
        Update("password_hash", string(passwordHash)).Error; err != nil {
        tx.Rollback()
        http.Error(w, "Error updating password", http.StatusInternalServerError)
        return
    }

    // Single use: burn the token
    if err := tx.Where("user_id = ?", userID).Delete(&models.PasswordResetToken{}).Error; err != nil {
        tx.Rollback()
        http.Error(w, "Error clearing reset token", http.StatusInternalServerError)
        return
    }

    if err := tx.Commit().Error; err != nil {
        http.Error(w, "Internal server error", http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]string{
        "message": "Password reset successfully",
    })
}


// GetInstructors retrieves instructors with optional filters
func (h *Handler) GetInstructors(w http.ResponseWriter, r *http.Request) {
    page, _ := strconv.Atoi(r.URL.Query().Get("page"))
    if page < 1 {
        page = 1
    }
    pageSize := 20

    query := h.db.Model(&models.Instructor{}).Preload("User").Preload("Reviews")

    if transmission := r.URL.Query().Get("transmission"); transmission != "" {
        query = query.Where("transmission = ?", transmission)
    }
    if vehicleType := r.URL.Query().Get("vehicle_type"); vehicleType != "" {
        query = query.Where("vehicle_type = ?", vehicleType)
    }
    if verified := r.URL.Query().Get("verified"); verified == "true" {
        query = query.Where("verified = ?", true)
    }
    if maxRate := r.URL.Query().Get("max_rate"); maxRate != "" {
        query = query.Where("hourly_rate <= ?", maxRate)
    }

    var total int64
    query.Count(&total)

    var instructors []models.Instructor
    if err := query.Offset((page - 1) * pageSize).Limit(pageSize).
        Order("average_rating DESC").Find(&instructors).Error; err != nil {
        http.Error(w, "Error retrieving instructors", http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]interface{}{
        "instructors": instructors,
        "total":       total,
        "page":        page,
        "page_size":   pageSize,
        "total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
    })
}

// SearchInstructors searches instructors by service area or name
func (h *Handler) SearchInstructors(w http.ResponseWriter, r *http.Request) {
    search := r.URL.Query().Get("q")
    if search == "" {
        http.Error(w, "Search query is required", http.StatusBadRequest)
        return
    }

    pattern := "%" + search + "%"

    var instructors []models.Instructor
    if err := h.db.Preload("User").
        Joins("JOIN users ON users.id = instructors.user_id").
        Where("instructors.service_area LIKE ? OR users.full_name LIKE ?", pattern, pattern).
        Find(&instructors).Error; err != nil {
        http.Error(w, "Error searching instructors", http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(instructors)
}

// GetInstructor retrieves a specific instructor profile
func (h *Handler) GetInstructor(w http.ResponseWriter, r *http.Request) {
    vars := mux.Vars(r)
    instructorID, err := strconv.ParseUint(vars["id"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid instructor ID", http.StatusBadRequest)
        return
    }

    var instructor models.Instructor
    if err := h.db.Preload("User").Preload("Reviews").First(&instructor, instructorID).Error; err != nil {
        http.Error(w, "Instructor not found", http.StatusNotFound)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(instructor)
}

// UpdateInstructor updates an instructor profile
func (h *Handler) UpdateInstructor(w http.ResponseWriter, r *http.Request) {
    vars := mux.Vars(r)
    instructorID, err := strconv.ParseUint(vars["id"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid instructor ID", http.StatusBadRequest)
        return
    }

    var instructor models.Instructor
    if err := h.db.First(&instructor, instructorID).Error; err != nil {
        http.Error(w, "Instructor not found", http.StatusNotFound)
        return
    }

    // Only the owning user may edit the profile
    callerID, err := utils.GetUserIDFromContext(r)
    if err != nil || callerID != instructor.UserID {
        http.Error(w, "Insufficient permissions", http.StatusForbidden)
        return
    }

    var updateData struct {
        Bio             string  `json:"bio"`
        YearsExperience int     `json:"years_experience"`
        HourlyRate      float64 `json:"hourly_rate"`
        VehicleType     string  `json:"vehicle_type"`
        Transmission    string  `json:"transmission"`
        ServiceArea     string  `json:"service_area"`
    }
    if err := json.NewDecoder(r.Body).Decode(&updateData); err != nil {
        http.Error(w, "Invalid JSON input", http.StatusBadRequest)
        return
    }

    if updateData.Bio != "" {
        instructor.Bio = updateData.Bio
    }
    if updateData.YearsExperience > 0 {
        instructor.YearsExperience = updateData.YearsExperience
    }
    if updateData.HourlyRate > 0 {
        instructor.HourlyRate = updateData.HourlyRate
    }
    if updateData.VehicleType != "" {
        instructor.VehicleType = updateData.VehicleType
    }
    if updateData.Transmission != "" {
        instructor.Transmission = updateData.Transmission
    }
    if updateData.ServiceArea != "" {
        instructor.ServiceArea = updateData.ServiceArea
    }

    if err := h.db.Save(&instructor).Error; err != nil {
        http.Error(w, "Error updating instructor", http.StatusInternalServerError)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(instructor)
}

// VerifyInstructor marks an instructor as verified (admin only)
func (h *Handler) VerifyInstructor(w http.ResponseWriter, r *http.Request) {
    vars := mux.Vars(r)
    instructorID, err := strconv.ParseUint(vars["id"], 10, 64)
    if err != nil {
        http.Error(w, "Invalid instructor ID", http.StatusBadRequest)
        return
    }

    result := h.db.Model(&models.Instructor{}).Where("id = ?", instructorID).Update("verified", true)
    if result.Error != nil {
        http.Error(w, "Error verifying instructor", http.StatusInternalServerError)
        return
    }
    if result.RowsAffected == 0 {
        http.Error(w, "Instructor not found", http.StatusNotFound)
        return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]string{
        "message": "Instructor verified successfully",
    })
}
