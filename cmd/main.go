package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bookingguru/drivelearn-server/cmd/api"
	"github.com/bookingguru/drivelearn-server/cmd/models"
	"github.com/bookingguru/drivelearn-server/db"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func main() {
	// Check for command-line arguments
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			runMigrations()
			return
		case "clear-db":
			runDatabaseClear()
			return
		case "seed":
			runSeed()
			return
		default:
			log.Fatalf("Unknown command: %s", os.Args[1])
		}
	}

	// Start the server
	startServer()
}

func runMigrations() {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		log.Fatalf("Database initialization error: %v", err)
	}
	defer func() {
		sqlDB, _ := DB.DB()
		sqlDB.Close()
		log.Println("Database connection closed")
	}()
	log.Println("Connected to the database for migrations")

	if err := performMigrations(DB); err != nil {
		log.Fatalf("Migration error: %v", err)
	}
	log.Println("Migrations completed successfully")
}

func performMigrations(DB *gorm.DB) error {

	migrations := map[interface{}]string{
		&models.User{}:                "User",
		&models.Instructor{}:          "Instructor",
		&models.WeeklyAvailability{}:  "WeeklyAvailability",
		&models.Booking{}:             "Booking",
		&models.Review{}:              "Review",
		&models.Transaction{}:         "Transaction",
		&models.PasswordResetToken{}:  "PasswordResetToken",
		&models.Device{}:              "Device",
		&models.NotificationHistory{}: "NotificationHistory",
	}

	log.Println("Starting database migrations...")
	for model, name := range migrations {
		log.Printf("Migrating %s table...", name)
		if err := DB.AutoMigrate(model); err != nil {
			return fmt.Errorf("error migrating %s table: %w", name, err)
		}
		log.Printf("%s migration successful", name)
	}

	directories := []string{
		"uploads/images",
	}

	for _, dir := range directories {
		if err := createDirectoryIfNotExist(dir); err != nil {
			log.Fatalf("Error creating directory %s: %v", dir, err)
		}
		log.Printf("Directory %s created/verified", dir)
	}

	log.Println("All migrations and directory setup completed successfully")
	return nil
}

func createDirectoryIfNotExist(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("could not create directory %s: %w", path, err)
		}
	}
	return nil
}

func startServer() {
	// Initialize database connection
	DB, err := db.NewPSQLStorage()
	if err != nil {
		log.Fatalf("Database initialization error: %v", err)
	}
	defer func() {
		sqlDB, _ := DB.DB()
		sqlDB.Close()
		log.Println("Database connection closed")
	}()
	log.Println("Connected to the database")

	// Graceful shutdown setup
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	// Start the API server
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	server := api.NewApiServer(":"+port, DB)

	go func() {
		if err := server.Run(); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()
	log.Printf("Server running on port %s", port)

	<-quit
	log.Println("Shutting down server...")
}

// runSeed loads a small demo data set: an admin, a verified instructor
// with a weekday schedule, and a student account.
func runSeed() {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		log.Fatalf("Database initialization error: %v", err)
	}
	defer func() {
		sqlDB, _ := DB.DB()
		sqlDB.Close()
		log.Println("Database connection closed")
	}()

	password, err := bcrypt.GenerateFromPassword([]byte("changeme"), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Error hashing seed password: %v", err)
	}

	tx := DB.Begin()

	admin := models.User{
		FullName:      "Admin",
		Email:         "admin@drivelearn.test",
		PasswordHash:  string(password),
		Phone:         "+233200000001",
		Role:          "admin",
		EmailVerified: true,
		Status:        "active",
	}
	if err := tx.Create(&admin).Error; err != nil {
		tx.Rollback()
		log.Fatalf("Error seeding admin: %v", err)
	}

	instructorUser := models.User{
		FullName:      "Kofi Mensah",
		Email:         "kofi@drivelearn.test",
		PasswordHash:  string(password),
		Phone:         "+233200000002",
		Role:          "instructor",
		EmailVerified: true,
		Status:        "active",
	}
	if err := tx.Create(&instructorUser).Error; err != nil {
		tx.Rollback()
		log.Fatalf("Error seeding instructor user: %v", err)
	}

	instructor := models.Instructor{
		UserID:          instructorUser.ID,
		Bio:             "Patient instructor with a focus on first-time drivers.",
		YearsExperience: 8,
		HourlyRate:      35,
		VehicleType:     "sedan",
		Transmission:    "manual",
		ServiceArea:     "Accra",
		LicenseNumber:   "DL-12345",
		Verified:        true,
	}
	if err := tx.Create(&instructor).Error; err != nil {
		tx.Rollback()
		log.Fatalf("Error seeding instructor profile: %v", err)
	}

	weekdaySlots := pq.StringArray{"09:00", "10:00", "11:00", "14:00", "15:00", "16:00"}
	for _, weekday := range []string{"monday", "tuesday", "wednesday", "thursday", "friday"} {
		availability := models.WeeklyAvailability{
			InstructorID: instructor.ID,
			Weekday:      weekday,
			Slots:        weekdaySlots,
		}
		if err := tx.Create(&availability).Error; err != nil {
			tx.Rollback()
			log.Fatalf("Error seeding availability for %s: %v", weekday, err)
		}
	}

	student := models.User{
		FullName:      "Ama Owusu",
		Email:         "ama@drivelearn.test",
		PasswordHash:  string(password),
		Phone:         "+233200000003",
		Role:          "student",
		EmailVerified: true,
		Status:        "active",
	}
	if err := tx.Create(&student).Error; err != nil {
		tx.Rollback()
		log.Fatalf("Error seeding student: %v", err)
	}

	if err := tx.Commit().Error; err != nil {
		log.Fatalf("Error committing seed data: %v", err)
	}

	log.Println("Seed data loaded successfully")
}

func clearDatabase(DB *gorm.DB, tables []interface{}) error {
	if len(tables) == 0 {
		// Default: Drop all tables
		tables = []interface{}{
			&models.Review{},
			&models.Booking{},
			&models.WeeklyAvailability{},
			&models.Transaction{},
			&models.PasswordResetToken{},
			&models.Device{},
			&models.NotificationHistory{},
			&models.Instructor{},
			&models.User{},
		}
	}

	log.Println("Dropping tables...")

	for _, table := range tables {
		if err := DB.Migrator().DropTable(table); err != nil {
			log.Printf("Warning dropping table %T: %v", table, err)
		} else {
			log.Printf("Table %T dropped", table)
		}
	}

	return nil
}

func runDatabaseClear() {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		log.Fatalf("Database initialization error: %v", err)
	}
	defer func() {
		sqlDB, _ := DB.DB()
		sqlDB.Close()
		log.Println("Database connection closed")
	}()

	log.Println("Preparing to clear database...")

	var confirmation string
	fmt.Print("Are you sure you want to clear the database? (yes/no): ")
	fmt.Scanln(&confirmation)

	if confirmation != "yes" {
		log.Println("Database clearing cancelled.")
		return
	}

	var tableNames string
	fmt.Print("Enter table names to clear (comma separated) or leave blank to clear all: ")
	fmt.Scanln(&tableNames)

	var tables []interface{}
	if tableNames != "" {
		tableList := splitTableNames(tableNames)
		for _, table := range tableList {
			switch strings.TrimSpace(table) {
			case "User":
				tables = append(tables, &models.User{})
			case "Instructor":
				tables = append(tables, &models.Instructor{})
			case "WeeklyAvailability":
				tables = append(tables, &models.WeeklyAvailability{})
			case "Booking":
				tables = append(tables, &models.Booking{})
			case "Review":
				tables = append(tables, &models.Review{})
			case "Transaction":
				tables = append(tables, &models.Transaction{})
			case "PasswordResetToken":
				tables = append(tables, &models.PasswordResetToken{})
			case "Device":
				tables = append(tables, &models.Device{})
			case "NotificationHistory":
				tables = append(tables, &models.NotificationHistory{})
			default:
				log.Printf("Unknown table: %s", table)
			}
		}
	}

	if err := clearDatabase(DB, tables); err != nil {
		log.Fatalf("Error clearing database: %v", err)
	}

	log.Println("Database cleared successfully")
}

func splitTableNames(tableNames string) []string {
	return strings.Split(tableNames, ",")
}
