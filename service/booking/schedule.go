package booking

import (
	"errors"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/bookingguru/drivelearn-server/cmd/models"
	"gorm.io/gorm"
)

const minutesPerDay = 24 * 60

var (
	ErrInvalidClock    = errors.New("invalid time, expected HH:MM")
	ErrInvalidDuration = errors.New("duration must be positive")
	ErrPastMidnight    = errors.New("lesson must end within the same day")
)

// blockingStatuses are the statuses that occupy an instructor's slot.
// Cancelled, completed and no-show bookings have resolved or vacated
// their interval and never block a new request.
var blockingStatuses = []string{models.BookingStatusPending, models.BookingStatusConfirmed}

// ParseClock converts an HH:MM wall-clock time into minutes since midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, ErrInvalidClock
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, ErrInvalidClock
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, ErrInvalidClock
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, ErrInvalidClock
	}
	return hour*60 + minute, nil
}

// SlotWindow computes the [start, end) minute window of a lesson. Lessons
// that would spill past midnight are rejected rather than wrapped.
func SlotWindow(startTime string, durationHours float64) (int, int, error) {
	start, err := ParseClock(startTime)
	if err != nil {
		return 0, 0, err
	}
	if durationHours <= 0 {
		return 0, 0, ErrInvalidDuration
	}
	end := start + int(math.Round(durationHours*60))
	if end > minutesPerDay {
		return 0, 0, ErrPastMidnight
	}
	return start, end, nil
}

// overlaps reports whether the half-open intervals [s1,e1) and [s2,e2)
// intersect. Touching endpoints (one lesson ending exactly when the next
// starts) do not count as a conflict.
func overlaps(s1, e1, s2, e2 int) bool {
	return s1 < e2 && e1 > s2
}

// Availability is the resolver outcome. A conflict is an expected branch of
// normal operation, so it is reported as a value rather than an error; the
// error return is reserved for storage failures.
type Availability struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// CheckAvailability decides whether an instructor is free for a candidate
// lesson. It queries all pending or confirmed bookings for the instructor on
// the calendar day of date and tests the requested window against each.
//
// The check is idempotent and does not reserve the slot; callers that go on
// to create a booking must re-run it inside the same critical section as the
// insert (see CreateBooking).
func CheckAvailability(db *gorm.DB, instructorID uint, date time.Time, startTime string, durationHours float64) (Availability, error) {
	start, end, err := SlotWindow(startTime, durationHours)
	if err != nil {
		return Availability{Available: false, Reason: err.Error()}, err
	}

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	var existing []models.Booking
	if err := db.Where("instructor_id = ? AND date >= ? AND date < ? AND status IN ?",
		instructorID, dayStart, dayEnd, blockingStatuses).
		Find(&existing).Error; err != nil {
		// Availability is only ever asserted positively; a failed query must
		// not be converted into "available".
		return Availability{Available: false, Reason: "Unable to verify availability"}, err
	}

	for _, b := range existing {
		bStart, bEnd, err := SlotWindow(b.StartTime, b.DurationHours)
		if err != nil {
			log.Printf("booking %d has an unreadable time window (%q, %v): %v", b.ID, b.StartTime, b.DurationHours, err)
			continue
		}
		if overlaps(start, end, bStart, bEnd) {
			return Availability{Available: false, Reason: "Time slot conflicts with existing booking"}, nil
		}
	}

	return Availability{Available: true}, nil
}
