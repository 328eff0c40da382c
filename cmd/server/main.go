package main

import (
	"context"
	"errors"
	"field-service-router/internal/adapters/cache"
	"field-service-router/internal/adapters/geocode"
	"field-service-router/internal/adapters/lock"
	"field-service-router/internal/adapters/repositories"
	"field-service-router/internal/adapters/wsmap"
	"field-service-router/internal/api"
	"field-service-router/internal/api/handlers"
	"field-service-router/internal/config"
	"field-service-router/internal/domain"
	"field-service-router/internal/platform/db"
	"field-service-router/internal/platform/obs"
	"field-service-router/internal/ports"
	"field-service-router/internal/services"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
)

// main is the application composition root.
// It wires concrete adapters (SQL or memory store, Redis lock, ORS geocoder,
// WebSocket map) behind ports and starts the HTTP server.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs.Register()
	checks := map[string]handlers.Check{}

	var (
		repo         ports.AppointmentStore
		geocodeCache geocode.Cache
	)
	if cfg.Database.URL != "" {
		conn, err := db.Open(ctx, cfg.Database.Driver, cfg.Database.URL)
		if err != nil {
			log.Fatal(err)
		}
		defer conn.Close()

		if err := repositories.InitSchema(ctx, conn); err != nil {
			log.Fatal(err)
		}
		repo = repositories.NewSQLAppointmentRepository(conn, cfg.Database.Driver)
		geocodeCache = cache.NewSQLGeocodeCache(conn, cfg.Database.Driver)
		checks["database"] = conn.PingContext
		log.Printf("appointment store driver=%s", cfg.Database.Driver)
	} else {
		repo, err = memoryStore(cfg.Database.SeedPath)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("appointment store driver=memory seed=%s", cfg.Database.SeedPath)
	}

	var locker ports.DateLocker = lock.NewLocalDateLocker()
	if cfg.Redis.URL != "" {
		redisLocker, err := lock.NewRedisDateLockerFromURL(cfg.Redis.URL, cfg.Planning.LockTTL)
		if err != nil {
			log.Fatal(err)
		}
		defer redisLocker.Close()
		locker = redisLocker
		checks["redis"] = redisLocker.Ping
	}

	var geocoder ports.Geocoder
	if cfg.Geocoding.ORSAPIKey != "" {
		opts := []geocode.Option{
			geocode.WithCountry(cfg.Geocoding.Country),
			geocode.WithRateLimit(cfg.Geocoding.RatePerSec, 1),
		}
		if geocodeCache != nil {
			opts = append(opts, geocode.WithCache(geocodeCache))
		}
		g, err := geocode.NewORSGeocoder(cfg.Geocoding.ORSAPIKey, opts...)
		if err != nil {
			log.Fatal(err)
		}
		geocoder = g
	} else {
		log.Println("ORS_API_KEY not set; appointments without coordinates will be skipped")
	}

	orch := newOrchestrator(cfg, loc, repo, locker, geocoder)

	router := api.NewRouter(api.RouterDeps{
		Repo:     repo,
		Planner:  orch,
		Runner:   orch,
		Renderer: wsmap.NewRenderer(cfg.Server.AllowedOrigins...),
		Location: loc,
		Checks:   checks,
	})

	// Interactive sessions hold the connection while the operator decides,
	// so there is no write timeout.
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown failed: %v", err)
		}
	}()

	log.Printf("Server listening addr=:%s tz=%s", cfg.Server.Port, loc)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

func newOrchestrator(
	cfg *config.Config,
	loc *time.Location,
	repo ports.AppointmentStore,
	locker ports.DateLocker,
	geocoder ports.Geocoder,
) *services.Orchestrator {
	r := cfg.Routing
	defaults := domain.ServiceDefaults{InHomeMinutes: r.InHomeMinutes, PickupMinutes: r.PickupMinutes}
	hours := services.WorkingHours{
		MorningStart:   r.MorningStart,
		MorningEnd:     r.MorningEnd,
		AfternoonStart: r.AfternoonStart,
		AfternoonEnd:   r.AfternoonEnd,
	}

	availability := services.NewAvailabilityManager(repo, hours, loc, defaults)
	optimizer := services.NewRouteOptimizer(availability, services.NewPlanner(r.AverageSpeedKmh), r.TechnicianID)
	center := domain.Coordinates{Lon: r.CenterLon, Lat: r.CenterLat}

	return services.NewOrchestrator(services.OrchestratorDeps{
		Repo:         repo,
		Availability: availability,
		Clusterer:    services.NewClusterer(center, r.GroupALimitKm, r.GroupBLimitKm),
		Optimizer:    optimizer,
		Locker:       locker,
		Geocoder:     geocoder,
	}, services.OrchestratorConfig{
		ClusterRadiusKm:  r.ClusterRadiusKm,
		SelectionTimeout: cfg.Planning.SelectionTimeout,
		Workers:          cfg.Planning.Workers,
		Location:         loc,
		Defaults:         defaults,
	})
}

// memoryStore seeds the in-memory repository. A missing seed file starts empty.
func memoryStore(seedPath string) (*repositories.MemoryAppointmentRepository, error) {
	if seedPath == "" {
		return repositories.NewMemoryAppointmentRepository(), nil
	}
	seed, err := repositories.LoadSeedFile(seedPath)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("seed file %q not found; starting with an empty store", seedPath)
		return repositories.NewMemoryAppointmentRepository(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory store: %w", err)
	}
	return repositories.NewMemoryAppointmentRepository(seed...), nil
}

