package main // Entry point package

import (
	"context" // Context for background workers
	"log"     // Logging library
	"time"    // Durations for sweeper wiring

	"github.com/joho/godotenv"    // Loads .env files in development
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/seatwise/table-allocation/internal/allocator"               // Allocation engine
	"github.com/seatwise/table-allocation/internal/cache"                   // Redis inventory cache
	"github.com/seatwise/table-allocation/internal/config"                  // Internal config loader
	"github.com/seatwise/table-allocation/internal/database"                // MySQL connection helper
	"github.com/seatwise/table-allocation/internal/handler"                 // HTTP handlers
	"github.com/seatwise/table-allocation/internal/observability"           // Decision-event sink
	"github.com/seatwise/table-allocation/internal/policy"                  // Venue allocation policy
	"github.com/seatwise/table-allocation/internal/queue"                   // Background event consumer
	"github.com/seatwise/table-allocation/internal/repository"              // MySQL repositories
	"github.com/seatwise/table-allocation/internal/router"                  // Internal router setup
	queue_publisher "github.com/seatwise/table-allocation/internal/service" // RabbitMQ publisher
)

func main() {
	_ = godotenv.Load() // Load .env when present; real env vars win

	cfg := config.Load()                  // Load environment config
	opts := config.LoadAllocatorOptions() // Load allocation tunables from env
	if cfg.HoldTTLSeconds > 0 {           // Config TTL overrides the tunables default
		opts.HoldTTL = time.Duration(cfg.HoldTTLSeconds) * time.Second
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName) // Connect to MySQL
	if err != nil {
		log.Fatalf("database: %v", err) // Cannot run without the primary store
	}
	defer db.Close()

	rdb := config.NewRedisClient()                     // Redis client, nil when unreachable
	inv := cache.NewInventoryCache(rdb, 5*time.Minute) // Inventory cache degrades to pass-through on nil client

	var events allocator.EventPublisher // Events disabled unless a broker is configured
	if cfg.RabbitURL != "" {
		events = queue_publisher.New(cfg.RabbitURL) // RabbitMQ publisher
	}

	svc, err := allocator.NewService(allocator.Config{
		Bookings:    repository.NewBookingRepo(db),           // Booking reads and status writes
		Tables:      repository.NewTableRepo(db),             // Table inventory and adjacency
		Holds:       repository.NewHoldRepo(db),              // Soft locks
		Assignments: repository.NewAssignmentRepo(db),        // Committed assignments and ledger
		Policies:    policy.Static{Policy: policy.Default()}, // Single venue policy for now
		Events:      events,                                  // Integration events (optional)
		Observer:    observability.NewLogSink(),              // Decision trace to stdout
		Cache:       inv,                                     // Inventory cache (optional)
		Options:     opts,                                    // Tunables
	})
	if err != nil {
		log.Fatalf("allocator: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.RunHoldSweeper(ctx, time.Duration(cfg.SweepIntervalSec)*time.Second, cfg.SweepBatch) // Expired-hold sweeper

	go func() { // Confirmed-assignment log consumer
		if err := queue.StartAssignmentConsumer(); err != nil {
			log.Printf("assignment consumer stopped: %v", err)
		}
	}()

	e := echo.New()          // Create Echo instance
	router.RegisterRoutes(e) // Health check
	router.RegisterAllocation(e, handler.NewAllocationHandler(svc), cfg.JWTSecret) // Allocation API

	addr := ":" + cfg.Port                                // Address string with port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info

	if err := e.Start(addr); err != nil { // Start HTTP server
		log.Fatal(err) // Log and exit if server fails
	}
}
