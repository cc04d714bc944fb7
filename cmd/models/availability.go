package models

import (
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// WeeklyAvailability holds the lesson start slots an instructor offers on a
// given weekday, e.g. ["09:00", "10:30", "14:00"]. One row per weekday.
type WeeklyAvailability struct {
	gorm.Model
	InstructorID uint           `gorm:"column:instructor_id;not null;uniqueIndex:idx_instructor_weekday" json:"instructor_id"`
	Weekday      string         `gorm:"column:weekday;size:10;not null;uniqueIndex:idx_instructor_weekday" json:"weekday"`
	Slots        pq.StringArray `gorm:"type:text[];column:slots" json:"slots"`

	Instructor *Instructor `gorm:"foreignKey:InstructorID" json:"-"`
}

func (WeeklyAvailability) TableName() string {
	return "weekly_availabilities"
}

var Weekdays = []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

func ValidWeekday(day string) bool {
	for _, d := range Weekdays {
		if d == day {
			return true
		}
	}
	return false
}
