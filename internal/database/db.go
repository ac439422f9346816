package database

import (
	"fmt"
	"log"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the global database instance
var DB *gorm.DB

// Connect establishes a database connection. PostgreSQL DSNs are the
// production path; anything else is treated as a SQLite file path for
// local development.
func Connect(dsn string, logLevel logger.LogLevel) error {
	var err error

	config := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		DB, err = gorm.Open(postgres.Open(dsn), config)
	} else {
		DB, err = gorm.Open(sqlite.Open(dsn), config)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Database connection established")
	return nil
}

// AutoMigrate runs database migrations
func AutoMigrate() error {
	return Migrate(DB)
}

// Migrate runs migrations on the given database handle. Accepting the
// handle supports in-memory test databases.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Company{},
		&User{},
		&Alert{},
		&Incident{},
		&CorrelationConfig{},
		&SLAConfig{},
		&AssignmentRule{},
		&TechnicianSkills{},
		&OnCallShift{},
		&OverflowQueueEntry{},
		&AuditLog{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// Close closes the database connection
func Close() error {
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// FindUsersByRole resolves escalation targets: msp_admin is a global
// role, every other role is scoped to the company.
func FindUsersByRole(db *gorm.DB, companyID uint, role UserRole) ([]User, error) {
	var users []User
	query := db.Where("role = ?", role)
	if role != RoleMSPAdmin {
		query = query.Where("company_id = ?", companyID)
	}
	err := query.Order("id ASC").Find(&users).Error
	return users, err
}
