package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"fx-eod-service/internal/database"
	"fx-eod-service/internal/handlers"
	"fx-eod-service/internal/render"
	"fx-eod-service/internal/services"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found in current directory, trying parent")
		if err := godotenv.Load("../.env"); err != nil {
			log.Println("No .env file found, using system environment variables")
		}
	}

	if mode := os.Getenv("GIN_MODE"); mode != "" {
		gin.SetMode(mode)
	}

	// Initialize Database
	database.Connect()
	database.Migrate()
	db := database.DB

	// Redis / Asynq
	redisAddr := os.Getenv("REDIS_URL")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer redisClient.Close()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})
	defer asynqClient.Close()

	// Report renderer
	reportBaseDir := os.Getenv("EOD_REPORT_DIR")
	if reportBaseDir == "" {
		reportBaseDir = "reports"
	}
	primaryLang := os.Getenv("EOD_PRIMARY_LANGUAGE")
	if primaryLang == "" {
		primaryLang = render.LangZh
	}
	renderer := render.NewFileRenderer(reportBaseDir, primaryLang)

	// Init Services
	windowService := services.NewWindowService(db)
	balanceService := services.NewBalanceService(db, windowService)
	lockService := services.NewLockService(db)
	reportService := services.NewReportService(db)
	gateService := services.NewTradingGateService(db, redisClient)
	exportService := services.NewExportService(db)
	eodService := services.NewEODService(db, windowService, balanceService, lockService, reportService, renderer, gateService, asynqClient)

	// Initialize Gin
	r := gin.Default()
	r.Use(handlers.RequestID())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "Welcome to FX EOD service",
		})
	})

	handlers.NewEODHandler(eodService, exportService).RegisterRoutes(r)
	handlers.NewTradingHandler(gateService).RegisterRoutes(r)

	// Start Cron Schedulers
	lockService.StartScheduler()
	services.NewArchiveService(db).StartScheduler()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("HTTP Server starting on port %s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatal("Failed to start server: ", err)
	}
}
