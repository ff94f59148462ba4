package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/summitstairs/backend/internal/database"
	"github.com/summitstairs/backend/internal/handlers"
	mW "github.com/summitstairs/backend/internal/middleware"
	"github.com/summitstairs/backend/internal/services"
)

// @title Summit Stairs Backend API
// @version 1.0
// @description API for stair shop business management and deposit allocation
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	viper.SetDefault("jwt.expiry_hours", 24)
	viper.SetDefault("argon2.time", 1)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)
	viper.SetDefault("argon2.salt_length", 16)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Optional schema features are resolved once and injected
	caps := database.ProbeCapabilities(db)

	depositService := services.NewDepositService(db, caps)
	depositDetails := services.NewDepositDetailService(db, caps)
	customerService := services.NewCustomerService(db)
	jobService := services.NewJobService(db)
	stairService := services.NewStairService(db)
	authService := services.NewAuthService(db, redisClient)
	receiptService := services.NewReceiptService(db, redisClient, caps)
	receiptHandler := handlers.NewReceiptHandler(receiptService)
	remittanceService := services.NewRemittanceService(depositDetails)
	reportService := services.NewReportService(db, redisClient, caps)
	voiceService := services.NewVoiceNotesService(db)
	defer voiceService.Close()

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// Static file server for shop drawings
	r.Handle("/static/drawings/*", http.StripPrefix("/static/drawings/",
		mW.StaticFileServer("./static/drawings")))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/auth/account", authService.GetUserAccount)

			// Customer endpoints
			r.Get("/customers", customerService.ListCustomers)
			r.Post("/customers", customerService.CreateCustomer)
			r.Get("/customers/{customerId}", customerService.GetCustomer)
			r.Put("/customers/{customerId}", customerService.UpdateCustomer)
			r.Get("/customers/{customerId}/balance", customerService.GetCustomerBalance)

			// Job endpoints
			r.Get("/jobs", jobService.ListJobs)
			r.Post("/jobs", jobService.CreateJob)
			r.Get("/jobs/{jobId}", jobService.GetJob)
			r.Put("/jobs/{jobId}/status", jobService.UpdateJobStatus)
			r.Get("/job-items/balances", jobService.GetJobItemBalances)

			// Job note endpoints
			r.Get("/jobs/{jobId}/notes", voiceService.ListJobNotes)
			r.Post("/jobs/{jobId}/notes/voice", voiceService.TranscribeJobNote)

			// Stair configuration endpoints
			r.Post("/stair-configs", stairService.CreateStairConfig)
			r.Put("/stair-configs/{configId}", stairService.UpdateStairConfig)
			r.Get("/stair-configs/{configId}/cut-sheet", stairService.GetCutSheet)
			r.Get("/jobs/{jobId}/stair-configs", stairService.ListStairConfigs)

			// Deposit endpoints
			r.Get("/deposits", depositDetails.ListDeposits)
			r.Post("/deposits", depositService.CreateDeposit)
			r.Get("/deposits/{depositId}", depositDetails.GetDeposit)
			r.Post("/deposits/{depositId}/allocations", depositService.AllocateDeposit)
			r.Post("/deposits/{depositId}/receipt", receiptHandler.GenerateReceipt)
			r.Post("/receipts/verify", receiptHandler.VerifyReceipt)

			// Remittance endpoints
			r.Get("/deposits/{depositId}/remittance", remittanceService.ExportRemittance)
			r.Post("/remittance/acknowledge", remittanceService.AcknowledgeRemittance)

			// Report endpoints
			r.Get("/reports/deposits.csv", reportService.ExportDepositsCSV)
			r.Get("/reports/deposit-summary", reportService.GetDepositSummary)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
