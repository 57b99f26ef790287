package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gymAccessAPI/handlers"
	"gymAccessAPI/internal/clock"
	"gymAccessAPI/internal/notification"
	"gymAccessAPI/middleware"
	"gymAccessAPI/services"

	_ "net/http/pprof"
)

var (
	dbPool            *pgxpool.Pool
	memberService     *services.MemberService
	deviceService     *services.DeviceService
	paymentService    *services.PaymentService
	attendanceService *services.AttendanceService
	accessService     *services.AccessService
	notifier          *services.Notifier
	fcmService        *notification.FCMService
	scheduler         *services.Scheduler
	appClock          clock.Clock
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	clerkSecretKey := os.Getenv("CLERK_SECRET_KEY")
	if clerkSecretKey == "" {
		log.Fatal("CLERK_SECRET_KEY environment variable is not set")
	}
	clerk.SetKey(clerkSecretKey)
	log.Println("Clerk initialized successfully")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		log.Fatal("Failed to parse database URL:", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	dbPool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatal("Failed to create connection pool:", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Fatal("Failed to ping database:", err)
	}

	log.Println("Successfully connected to database")

	// All attendance day-boundary math happens in the gym's local timezone,
	// not the server's.
	tz := os.Getenv("OPERATING_TIMEZONE")
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Fatal("Invalid OPERATING_TIMEZONE:", err)
	}

	clk := clock.New()
	appClock = clk

	memberService = services.NewMemberService(dbPool, clk)
	deviceService = services.NewDeviceService(dbPool)
	paymentService = services.NewPaymentService(dbPool, memberService, clk)
	attendanceService = services.NewAttendanceService(dbPool, loc)
	accessService = services.NewAccessService(memberService, deviceService, attendanceService, attendanceService, clk)

	notifier = services.NewNotifier()
	notifier.SetSMSProvider(services.LogSMSProvider{})
	notifier.SetEmailProvider(services.LogEmailProvider{})

	fcmService, err = notification.NewFCMService("./serviceAccountKey.json")
	if err != nil {
		log.Printf("Warning: Could not initialize FCM: %v", err)
	} else {
		notifier.SetPushProvider(fcmService)
		log.Println("FCM Push Provider initialized successfully")
	}

	scheduler = services.NewScheduler(clk,
		&services.OverdueSweepJob{Members: memberService},
		&services.ReminderJob{Members: memberService, Notifier: notifier, Tokens: memberService},
		&services.PaymentGenerationJob{Members: memberService, Ledger: paymentService},
		&services.AttendanceCleanupJob{Sessions: attendanceService},
		&services.LogRetentionJob{Logs: attendanceService},
	)
	scheduler.OnRun(middleware.RecordJobRun)

	middleware.InitPrometheus()
}

func main() {
	defer func() {
		log.Println("Closing database connection pool...")
		dbPool.Close()
	}()

	accessHandler := handlers.NewAccessHandler(accessService)
	memberHandler := handlers.NewMemberHandler(memberService, appClock)
	paymentHandler := handlers.NewPaymentHandler(paymentService)
	attendanceHandler := handlers.NewAttendanceHandler(attendanceService, accessService, memberService, appClock)

	r := mux.NewRouter()

	go middleware.CleanupVisitors()

	r.Use(middleware.RateLimitMiddleware)
	r.Use(middleware.MonitorMiddleware)

	r.Handle("/metrics", middleware.BasicAuthMiddleware(promhttp.Handler()))
	r.PathPrefix("/debug/pprof/").Handler(middleware.PprofSecurityMiddleware(http.DefaultServeMux))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := dbPool.Ping(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "gym-access-api"}`))
	}).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()

	// -------------------------------------------------------------------------
	// DEVICE ROUTES (no staff auth; door controllers authenticate by device ID)
	// -------------------------------------------------------------------------
	api.HandleFunc("/access/door", accessHandler.ProcessDoorAccess).Methods("POST")
	api.HandleFunc("/access/verify", accessHandler.VerifyMemberAccess).Methods("POST")

	// -------------------------------------------------------------------------
	// STAFF ROUTES (REQUIRE AUTH HEADER)
	// -------------------------------------------------------------------------
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.StaffAuthMiddleware)

	protected.HandleFunc("/members", memberHandler.CreateMember).Methods("POST")
	protected.HandleFunc("/members/{memberNo}", memberHandler.GetMember).Methods("GET")
	protected.HandleFunc("/members/{memberNo}", memberHandler.DeactivateMember).Methods("DELETE")
	protected.HandleFunc("/members/{memberNo}/payment-status", memberHandler.UpdatePaymentStatus).Methods("PUT")
	protected.HandleFunc("/members/{memberNo}/door-access", memberHandler.SetDoorAccess).Methods("PUT")
	protected.HandleFunc("/members/{memberNo}/push-token", memberHandler.RegisterPushToken).Methods("POST")

	protected.HandleFunc("/payments", paymentHandler.RecordPayment).Methods("POST")
	protected.HandleFunc("/payments/{id}/refund", paymentHandler.RefundPayment).Methods("POST")

	protected.HandleFunc("/attendance/status/{memberNo}", attendanceHandler.GetMemberCurrentStatus).Methods("GET")
	protected.HandleFunc("/attendance/logs", attendanceHandler.GetAttendanceLogs).Methods("GET")
	protected.HandleFunc("/attendance/daily", attendanceHandler.GetDailySummary).Methods("GET")
	protected.HandleFunc("/attendance/manual", attendanceHandler.ManualAttendance).Methods("POST")

	scheduler.Start()

	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Pprof-Secret"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorilllaHandlers.AllowCredentials(),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3333"
	}
	port = ":" + port

	server := http.Server{
		Addr:         port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Error starting server:", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	sig := <-sigChan
	log.Println("Got signal:", sig)

	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server shutdown complete")
}
