package models

import (
    "gorm.io/gorm"
    "time"
)

// Booking statuses. A booking is never deleted; cancellation is a state
// transition so past bookings stay queryable for stats and reviews.
const (
    BookingStatusPending   = "pending"
    BookingStatusConfirmed = "confirmed"
    BookingStatusCompleted = "completed"
    BookingStatusCancelled = "cancelled"
    BookingStatusNoShow    = "no-show"
)

const (
    PaymentStatusPending   = "pending"
    PaymentStatusCompleted = "completed"
    PaymentStatusFailed    = "failed"
    PaymentStatusRefunded  = "refunded"
)

type Booking struct {
    gorm.Model
    StudentID      uint      `gorm:"not null;index" json:"student_id"`
    InstructorID   uint      `gorm:"not null;index" json:"instructor_id"`
    Date           time.Time `gorm:"not null" json:"date"`                          // calendar date, time-of-day stripped
    StartTime      string    `gorm:"size:5;not null" json:"start_time"`             // HH:MM, 24-hour
    DurationHours  float64   `gorm:"not null" json:"duration_hours"`
    Status         string    `gorm:"size:20;not null;default:pending" json:"status"`
    LessonCost     float64   `gorm:"not null" json:"lesson_cost"`
    BookingFee     float64   `gorm:"not null" json:"booking_fee"`
    Total          float64   `gorm:"not null" json:"total"`
    PaymentStatus  string    `gorm:"size:20;not null;default:pending" json:"payment_status"`
    PaymentID      string    `gorm:"size:255" json:"payment_id,omitempty"`
    PickupLocation string    `gorm:"size:255" json:"pickup_location,omitempty"`
    Notes          string    `gorm:"type:text" json:"notes,omitempty"`

    Student        *User       `gorm:"foreignKey:StudentID" json:"student,omitempty"`
    Instructor     *Instructor `gorm:"foreignKey:InstructorID" json:"instructor,omitempty"`
}

// StatusTransitions is the fixed transition table for booking lifecycle
// updates. Terminal states have no entries.
var StatusTransitions = map[string][]string{
    BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
    BookingStatusConfirmed: {BookingStatusCompleted, BookingStatusCancelled, BookingStatusNoShow},
}

// CanTransition reports whether a booking may move from one status to another.
func CanTransition(from, to string) bool {
    for _, allowed := range StatusTransitions[from] {
        if allowed == to {
            return true
        }
    }
    return false
}

// ValidPaymentStatus reports whether s is a recognised payment status.
func ValidPaymentStatus(s string) bool {
    switch s {
    case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded:
        return true
    }
    return false
}
