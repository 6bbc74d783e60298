package database

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"fx-eod-service/internal/models"
)

var DB *gorm.DB

var Log = logrus.New()

func init() {
	Log.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		Log.SetLevel(lvl)
	}
}

func Connect() {
	var err error
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_HOST"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_NAME"),
	)

	DB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		Log.Fatal("Failed to connect to database: ", err)
	}

	Log.Info("Database connection established")
}

func Migrate() {
	err := DB.AutoMigrate(
		&models.Branch{},
		&models.Currency{},
		&models.Transaction{},
		&models.ArchivedTransaction{},
		&models.CurrencyBalance{},
		&models.EODStatus{},
		&models.EODBalanceVerification{},
		&models.EODCashOut{},
		&models.EODSessionLock{},
		&models.IncomeReport{},
		&models.StockReport{},
		&models.BaseSummaryReport{},
	)
	if err != nil {
		Log.Fatal("Failed to migrate database: ", err)
	}
	Log.Info("Database migration completed")
}
