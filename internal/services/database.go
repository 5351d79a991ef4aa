package services

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"hostel_app/internal/models"
)

// InitDB initializes the database connection with connection pooling.
// SQL statements are only logged outside production.
func InitDB(dsn string, production bool, log *zap.Logger) (*gorm.DB, error) {
	level := logger.Info
	if production {
		level = logger.Warn
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	// Get underlying sql.DB to configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Connection pool settings
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("Database connection established")
	return db, nil
}

// AutoMigrate runs database migrations for all models
func AutoMigrate(db *gorm.DB, log *zap.Logger) error {
	log.Info("Running database migrations...")

	err := db.AutoMigrate(
		&models.Student{},
		&models.Room{},
		&models.Fee{},
		&models.LeaveRequest{},
		&models.OTPVerification{},
		&models.Complaint{},
		&models.Member{},
		&models.MessMenu{},
		&models.StudentNotifPreference{},
		&models.PaymentCallbackHistory{},
		&models.ScheduledTask{},
		&models.ScheduledTaskHistory{},
	)
	if err != nil {
		return err
	}

	log.Info("Database migrations completed")
	return nil
}

var defaultMessMenu = []models.MessMenu{
	{Day: "monday", Breakfast: "Poha, Tea", Lunch: "Dal Rice, Sabzi", Dinner: "Chapati, Dal, Rice"},
	{Day: "tuesday", Breakfast: "Upma, Coffee", Lunch: "Rajma Rice, Salad", Dinner: "Roti, Sabzi, Dal"},
	{Day: "wednesday", Breakfast: "Paratha, Tea", Lunch: "Chole Rice, Pickle", Dinner: "Chapati, Paneer, Rice"},
	{Day: "thursday", Breakfast: "Idli, Sambar", Lunch: "Dal Rice, Aloo Sabzi", Dinner: "Roti, Dal, Rice"},
	{Day: "friday", Breakfast: "Sandwich, Tea", Lunch: "Biryani, Raita", Dinner: "Chapati, Mixed Dal"},
	{Day: "saturday", Breakfast: "Dosa, Chutney", Lunch: "Pulao, Curry", Dinner: "Roti, Sabzi, Rice"},
	{Day: "sunday", Breakfast: "Puri Sabzi, Tea", Lunch: "Special Thali", Dinner: "Chapati, Dal, Sweet"},
}

// SeedMessMenu inserts the default weekly menu for days that have none. Existing days are left alone.
func SeedMessMenu(db *gorm.DB) error {
	menu := make([]models.MessMenu, len(defaultMessMenu))
	copy(menu, defaultMessMenu)
	for i := range menu {
		menu[i].DayOrder = models.WeekdayOrder(menu[i].Day)
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "day"}},
		DoNothing: true,
	}).Create(&menu).Error
}
