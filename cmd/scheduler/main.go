package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/talentops/pipetrack/internal/notify"
	"github.com/talentops/pipetrack/internal/pipeline"
	"github.com/talentops/pipetrack/internal/repository"
	"github.com/talentops/pipetrack/internal/response"
	"github.com/talentops/pipetrack/internal/scheduler"
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

	interval := scheduler.DefaultInterval
	if raw := os.Getenv("EVALUATION_INTERVAL"); raw != "" {
		interval, err = time.ParseDuration(raw)
		if err != nil {
			log.Fatalf("invalid EVALUATION_INTERVAL %q: %v", raw, err)
		}
	}

	s := scheduler.NewScheduler(engine, events, interval)

	go s.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down scheduler...")
	s.Stop()
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
