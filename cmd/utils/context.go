package utils

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/bookingguru/drivelearn-server/cmd/models"
	"github.com/golang-jwt/jwt/v4"
	"gorm.io/gorm"
)

type contextKey string

const UserIDKey contextKey = "userID"


func GetUserIDFromContext(r *http.Request) (uint, error) {
    userID, ok := r.Context().Value(UserIDKey).(uint)
    if !ok {
        return 0, errors.New("user ID not found in context")
    }
    return userID, nil
}


func AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
    return func(w http.ResponseWriter, r *http.Request) {
        // Get token from Authorization header
        authHeader := r.Header.Get("Authorization")
        if authHeader == "" {
            http.Error(w, "Authorization header required", http.StatusUnauthorized)
            return
        }

        // Extract the token
        tokenString := strings.Replace(authHeader, "Bearer ", "", 1)

        // Parse and validate the token
        claims := &jwt.RegisteredClaims{}
        token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
            return []byte(os.Getenv("SECRET_KEY")), nil
        })

        if err != nil || !token.Valid {
            http.Error(w, "Invalid token", http.StatusUnauthorized)
            return
        }

        userID, err := strconv.ParseUint(claims.Subject, 10, 64)
        if err != nil {
            http.Error(w, "Invalid user ID in token", http.StatusUnauthorized)
            return
        }

        ctx := context.WithValue(r.Context(), UserIDKey, uint(userID))
        next.ServeHTTP(w, r.WithContext(ctx))
    }
}

// RequireRole guards a handler so only callers holding one of the given roles
// reach it. Runs after the token check and reads the role from the user
// record rather than trusting anything client-side.
func RequireRole(db *gorm.DB, roles ...string) func(http.HandlerFunc) http.HandlerFunc {
    return func(next http.HandlerFunc) http.HandlerFunc {
        return AuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
            userID, err := GetUserIDFromContext(r)
            if err != nil {
                http.Error(w, "Unauthorized", http.StatusUnauthorized)
                return
            }

            var user models.User
            if err := db.First(&user, userID).Error; err != nil {
                http.Error(w, "Unauthorized", http.StatusUnauthorized)
                return
            }

            for _, role := range roles {
                if user.Role == role {
                    next.ServeHTTP(w, r)
                    return
                }
            }

            http.Error(w, "Insufficient permissions", http.StatusForbidden)
        })
    }
}
