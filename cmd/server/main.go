package main

import (
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talentops/pipetrack/internal/api"
	"github.com/talentops/pipetrack/internal/middleware"
	"github.com/talentops/pipetrack/internal/notify"
	"github.com/talentops/pipetrack/internal/pipeline"
	"github.com/talentops/pipetrack/internal/ratelimit"
	"github.com/talentops/pipetrack/internal/repository"
	"github.com/talentops/pipetrack/internal/response"
	"github.com/talentops/pipetrack/internal/sla"
)

func main() {
	postgresDSN := os.Getenv("POSTGRES_DSN")
	if postgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	events, err := repository.NewPostgresEventRepository(postgresDSN)
	if err != nil {
		log.Fatal(err)
	}

	defer func() {
		if err := events.Close(); err != nil {
			log.Printf("failed to close event repository: %v", err)
		}
	}()

	tasks, err := repository.NewPostgresTaskRepository(postgresDSN)
	if err != nil {
		log.Fatal(err)
	}

	defer func() {
		if err := tasks.Close(); err != nil {
			log.Printf("failed to close task repository: %v", err)
		}
	}()

	cfg := loadPipelineConfig()

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	learnerStore, err := response.NewRedisStore(redisAddr)
	if err != nil {
		log.Fatal(err)
	}
	learner := response.NewLearner(learnerStore)

	engine := sla.NewEngine(events, tasks, learner, cfg)

	notifier := notify.NewEmailNotifier(
		os.Getenv("EMAIL_API_KEY"),
		os.Getenv("FROM_NAME"),
		os.Getenv("FROM_ADDRESS"),
		os.Getenv("ESCALATION_EMAIL_TO"),
	)
	if notifier != nil {
		engine.SetNotifier(notifier)
	}

	limiter := ratelimit.NewLimiter(newLimiterStore(redisAddr), nil)

	apiHandler := api.NewAPI(events, tasks, engine, cfg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", middleware.MetricsMiddleware(middleware.RateLimitMiddleware(limiter, apiHandler)))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on :%s", port)
	log.Printf("Connected to Postgres, Redis at %s", redisAddr)

	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Fatal(err)
	}
}

func loadPipelineConfig() pipeline.Config {
	path := os.Getenv("PIPELINE_CONFIG")
	if path == "" {
		return pipeline.Default()
	}

	cfg, err := pipeline.Load(path)
	if err != nil {
		log.Fatal(err)
	}

	log.Printf("Loaded pipeline config from %s (%d stages)", path, len(cfg.Stages))
	return cfg
}

// newLimiterStore picks the rate-limit counter backend. A shared Redis
// window is correct across replicas; the in-process store is enough for
// a single instance.
func newLimiterStore(redisAddr string) ratelimit.Store {
	if os.Getenv("RATE_LIMIT_STORE") == "memory" {
		return ratelimit.NewMemoryStore()
	}

	store, err := ratelimit.NewRedisStore(redisAddr)
	if err != nil {
		log.Fatal(err)
	}
	return store
}
