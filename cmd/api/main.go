package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/example/pos-sync/internal/api"
	"github.com/example/pos-sync/internal/auth"
	"github.com/example/pos-sync/internal/command"
	"github.com/example/pos-sync/internal/domain/item"
	"github.com/example/pos-sync/internal/domain/tenant"
	"github.com/example/pos-sync/internal/kafka"
	"github.com/example/pos-sync/internal/localstore"
	"github.com/example/pos-sync/internal/notify"
	"github.com/example/pos-sync/internal/query"
	"github.com/example/pos-sync/internal/queue"
	"github.com/example/pos-sync/internal/remote"
	"github.com/example/pos-sync/internal/syncer"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Configuration from environment variables
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("[API] JWT_SECRET environment variable is required")
	}
	if len(jwtSecret) < 32 {
		log.Fatal("[API] JWT_SECRET must be at least 32 characters long")
	}

	remoteKind := getEnv("REMOTE_STORE", "memory")
	postgresConnStr := os.Getenv("DATABASE_URL")
	kafkaBrokersStr := os.Getenv("KAFKA_BROKERS")
	kafkaTopic := getEnv("KAFKA_TOPIC", kafka.DefaultSyncTopic)
	businessID := getEnv("BUSINESS_ID", "demo-business")
	startOnline := getEnv("START_ONLINE", "true") == "true"

	log.Println("[API] ========================================")
	log.Println("[API] POS Sync - Offline-First Mode")
	log.Println("[API] ========================================")
	log.Printf("[API] Remote store: %s", remoteKind)

	// Remote store
	var remoteStore remote.Store
	switch remoteKind {
	case "dynamo":
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			log.Fatalf("[API] Failed to load AWS config: %v", err)
		}
		tableName := getEnv("DYNAMO_TABLE", "pos-sync-records")
		remoteStore = remote.NewDynamoStore(dynamodb.NewFromConfig(cfg), tableName)
		log.Printf("[API] Remote: DynamoDB table %s", tableName)
	case "memory":
		mem := remote.NewMemoryStore()
		if getEnv("SEED_DEMO", "true") == "true" {
			seedDemo(ctx, mem, businessID)
		}
		remoteStore = mem
		log.Println("[API] Remote: in-memory (demo)")
	default:
		log.Fatalf("[API] Unknown REMOTE_STORE %q", remoteKind)
	}

	// Local cache
	var local localstore.Store
	if postgresConnStr != "" {
		db, err := localstore.ConnectPostgres(postgresConnStr)
		if err != nil {
			log.Fatalf("[API] Failed to connect to PostgreSQL: %v", err)
		}
		defer db.Close()
		pg := localstore.NewPostgresStore(db)
		if err := pg.EnsureSchema(); err != nil {
			log.Fatalf("[API] Failed to ensure local schema: %v", err)
		}
		local = pg
		log.Println("[API] Local cache: PostgreSQL")
	} else {
		local = localstore.NewMemoryStore()
		log.Println("[API] Local cache: in-memory")
	}

	// Notifications
	notifier := notify.Notifier(notify.LogNotifier{})
	if kafkaBrokersStr != "" {
		brokers := strings.Split(kafkaBrokersStr, ",")
		producer := kafka.NewProducer(brokers, kafkaTopic)
		defer producer.Close()
		notifier = notify.Multi(notify.LogNotifier{}, notify.NewKafkaNotifier(producer, businessID))
		log.Printf("[API] Kafka: %v topic %s", brokers, kafkaTopic)
	}

	// Core services
	monitor := syncer.NewMonitor(startOnline)
	pending := queue.New(local, notifier, func() bool { return !monitor.Online() })
	items := item.NewService(remoteStore)
	tenants := tenant.NewService(remoteStore)
	engine := syncer.NewEngine(monitor, pending, items, tenants, remoteStore, local, notifier)

	cmdHandler := command.NewHandler(monitor, pending, items, tenants, remoteStore, local)
	queryHandler := query.NewHandler(local)

	// Fill the cache from the remote store before serving reads.
	if monitor.Online() {
		if err := syncer.Hydrate(ctx, remoteStore, local); err != nil {
			log.Printf("[API] Initial hydrate failed: %v", err)
		}
	}

	// Reconnect: drain the queue, then refresh the cache.
	monitor.Subscribe(func(online bool) {
		if !online {
			log.Println("[API] Connection lost; queueing mutations locally")
			return
		}
		log.Println("[API] Connection restored; draining pending operations")
		go func() {
			engine.Drain(ctx)
			if err := syncer.Hydrate(ctx, remoteStore, local); err != nil {
				log.Printf("[API] Hydrate after drain failed: %v", err)
			}
		}()
	})

	// Periodic sweep for operations left behind by partial failures.
	go monitor.RunPeriodic(ctx, syncer.DefaultCheckInterval, engine.CheckAndDrain)

	// JWT service
	jwtService := auth.NewJWTService(
		jwtSecret,
		15*time.Minute, // Access token expiry
		7*24*time.Hour, // Refresh token expiry (7 days)
	)

	// Initialize API
	handlers := api.NewHandlers(cmdHandler, queryHandler, pending, engine, monitor)
	authHandlers := api.NewAuthHandlers(queryHandler, jwtService)
	router := api.NewRouter(handlers, authHandlers, jwtService)

	addr := getEnv("LISTEN_ADDR", ":8080")
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Println("[API] ========================================")
		log.Printf("[API] Server started on %s", addr)
		log.Println("[API] ========================================")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[API] Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[API] Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// seedDemo loads a demo tenant into the in-memory remote store so the
// server is usable out of the box. Admin login: admin@example.com / admin12345
func seedDemo(ctx context.Context, store remote.Store, businessID string) {
	now := time.Now()
	adminHash, err := auth.HashPassword("admin12345")
	if err != nil {
		log.Fatalf("[API] Failed to hash demo password: %v", err)
	}
	staffHash, _ := auth.HashPassword("staff12345")

	biz := tenant.Business{
		ID:        businessID,
		Name:      "Demo Retail",
		Email:     "owner@example.com",
		CreatedAt: now,
		UpdatedAt: now,
	}
	branch := tenant.Branch{
		ID:         "branch-main",
		BusinessID: businessID,
		Name:       "Main Branch",
		Location:   "Downtown",
		CreatedAt:  now,
	}
	admin := tenant.User{
		ID:           "user-admin",
		BusinessID:   businessID,
		Email:        "admin@example.com",
		Name:         "Demo Admin",
		Role:         item.RoleAdmin,
		PasswordHash: adminHash,
		CreatedAt:    now,
	}
	staff := tenant.User{
		ID:           "user-staff",
		BusinessID:   businessID,
		BranchID:     branch.ID,
		Email:        "staff@example.com",
		Name:         "Demo Staff",
		Role:         item.RoleStaff,
		PasswordHash: staffHash,
		CreatedAt:    now,
	}

	seed := func(collection, id string, doc any) {
		if err := store.Set(ctx, collection, id, doc); err != nil {
			log.Printf("[API] Seed %s/%s: %v", collection, id, err)
		}
	}
	seed(tenant.CollectionBusinesses, biz.ID, biz)
	seed(tenant.CollectionBranches, branch.ID, branch)
	seed(tenant.CollectionUsers, admin.ID, admin)
	seed(tenant.CollectionUsers, staff.ID, staff)
	log.Println("[API] Seeded demo tenant (admin@example.com / admin12345)")
}
