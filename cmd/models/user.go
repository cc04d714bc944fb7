package models

import (
	"time"

	"gorm.io/gorm"
)


type User struct {
    gorm.Model
    FullName       string    `gorm:"column:full_name;size:255;not null" json:"full_name"`
    Email          string    `gorm:"column:email;size:255;not null" json:"email"`
    PasswordHash   string    `gorm:"column:password_hash;size:255;not null" json:"password_hash"`
    Role           string    `gorm:"column:role;size:50;not null" json:"role"`
    Phone          string    `gorm:"column:phone;size:20;not null" json:"phone"`
    PhoneVerified  bool      `gorm:"column:phone_verified;default:false" json:"phone_verified"`
    EmailVerified  bool      `gorm:"column:email_verified;default:false" json:"email_verified"`
    Status         string    `gorm:"column:status;size:50;not null;default:inactive" json:"status"`
    Refresh        string    `gorm:"column:refresh_token;size:255" json:"refresh_token"`
    RefreshTokenExpiredAt time.Time `gorm:"column:refresh_token_expired_at" json:"refresh_token_expired_at"`
    ProfilePicturePath string `gorm:"column:profile_picture_path;size:255" json:"profile_picture_path"`
    EmailVerificationCode string    `gorm:"size:6"`
    VerificationExpiry    time.Time `gorm:""`

    Instructor     *Instructor `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;nullable" json:"instructor,omitempty"`
}


type Instructor struct {
    gorm.Model
    UserID          uint    `gorm:"column:user_id;not null" json:"user_id"`
    Bio             string  `gorm:"column:bio;type:text" json:"bio"`
    YearsExperience int     `gorm:"column:years_experience;default:0" json:"years_experience"`
    HourlyRate      float64 `gorm:"column:hourly_rate;not null" json:"hourly_rate"`
    VehicleType     string  `gorm:"column:vehicle_type;size:100" json:"vehicle_type"`
    Transmission    string  `gorm:"column:transmission;size:20" json:"transmission"` // manual or automatic
    ServiceArea     string  `gorm:"column:service_area;size:255" json:"service_area"`
    LicenseNumber   string  `gorm:"column:license_number;size:50" json:"license_number"`
    Verified        bool    `gorm:"column:verified;default:false" json:"verified"`

    AverageRating   float64 `gorm:"column:average_rating;default:0" json:"average_rating"`
    TotalReviews    int     `gorm:"column:total_reviews;default:0" json:"total_reviews"`

    User            *User    `gorm:"foreignKey:UserID" json:"-"`
    Reviews         []Review `gorm:"foreignKey:InstructorID" json:"reviews,omitempty"`
}

func (Instructor) TableName() string {
    return "instructors"
}


type Review struct {
    gorm.Model
    BookingID    uint    `gorm:"column:booking_id;not null;uniqueIndex" json:"booking_id"` // one review per lesson
    StudentID    uint    `gorm:"column:student_id;not null" json:"student_id"`
    InstructorID uint    `gorm:"column:instructor_id;not null" json:"instructor_id"`
    Rating       int     `gorm:"column:rating;not null" json:"rating"`           // 1-5
    Comment      string  `gorm:"column:comment;type:text" json:"comment"`
    Student      *User       `gorm:"foreignKey:StudentID" json:"student,omitempty"`
    Instructor   *Instructor `gorm:"foreignKey:InstructorID" json:"instructor,omitempty"`
}

func (Review) TableName() string {
    return "reviews"
}


type PasswordResetToken struct {
    ID        uint      `gorm:"primaryKey"`
    UserID    uint      `gorm:"not null"`
    Token     string    `gorm:"not null"`
    ExpiresAt time.Time `gorm:"not null"`
}
