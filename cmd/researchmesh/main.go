// Command researchmesh runs a demo research session against the orchestration
// engine: it loads the YAML configuration, wires the configured generator and
// stores, starts the observability server and runs a planner/writer pipeline
// on the given topic.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hupe1980/researchmesh"
	"github.com/hupe1980/researchmesh/config"
	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/internal/util"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/memory"
	meshanthropic "github.com/hupe1980/researchmesh/model/anthropic"
	meshopenai "github.com/hupe1980/researchmesh/model/openai"
	"github.com/hupe1980/researchmesh/observability"
	"github.com/hupe1980/researchmesh/session"
	"github.com/hupe1980/researchmesh/worker"
)

var (
	// Version information (set via ldflags)
	Version = "dev"

	configFile = flag.String("config", getEnv("CONFIG_FILE", "config.yaml"), "Configuration file")
	topic      = flag.String("topic", "the impact of intermittent energy sources on grid stability", "Research topic")
	userID     = flag.String("user", "demo", "Owning user id")
)

func main() {
	flag.Parse()

	log.Printf("Starting ResearchMesh v%s", Version)

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	mesh, err := buildMesh(cfg)
	if err != nil {
		log.Fatalf("setup: %v", err)
	}

	registerWorkerTypes(mesh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 2)
	if cfg.Metrics.Enabled {
		obsServer := observability.NewServer(cfg.Metrics.Addr)
		go observability.Collect(ctx, mesh.Engine().Events())
		go func() {
			log.Printf("Serving metrics on %s", cfg.Metrics.Addr)
			if err := obsServer.Start(); err != nil {
				errChan <- fmt.Errorf("metrics server: %w", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			_ = obsServer.Shutdown(shutdownCtx)
		}()
	}

	go streamEvents(ctx, mesh)

	done := make(chan struct{})
	go func() {
		defer close(done)
		preferences := map[string]any{"topic": *topic}
		for k, v := range cfg.Preferences {
			preferences[k] = v
		}
		s, err := mesh.RunSession(ctx, *userID, *topic, preferences, []string{"planner", "writer"})
		if err != nil {
			errChan <- err
			return
		}
		log.Printf("Session %s finished with status %s", s.ID, s.Status)
		printArtifacts(ctx, mesh, s.ID, *userID)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		log.Printf("Error: %v", err)
	case <-quit:
		log.Println("Shutting down...")
	case <-done:
	}
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		log.Printf("No config file at %s, using defaults", path)
		cfg := config.Default()
		cfg.OpenAIKey = os.Getenv("OPENAI_API_KEY")
		cfg.AnthropicKey = os.Getenv("ANTHROPIC_API_KEY")
		return cfg, nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func buildMesh(cfg *config.Config) (*researchmesh.ResearchMesh, error) {
	logger := logging.NewDefaultSlogLogger()

	var generator core.Generator
	switch cfg.Provider {
	case "anthropic":
		generator = meshanthropic.New(func(o *meshanthropic.Options) {
			o.APIKey = cfg.AnthropicKey
			o.MaxTokens = cfg.MaxTokens
			o.Temperature = cfg.Temperature
		})
	default:
		generator = meshopenai.New(func(o *meshopenai.Options) {
			o.MaxCompletionTokens = cfg.MaxTokens
			o.Temperature = cfg.Temperature
		})
	}

	opts := []func(o *researchmesh.Options){
		func(o *researchmesh.Options) {
			o.Logger = logger
			o.Generator = generator
			o.DependencyInterval = cfg.Engine.DependencyInterval
			o.DependencyTimeout = cfg.Engine.DependencyTimeout
			o.MaxGeneratorCalls = cfg.Engine.MaxGeneratorCalls
		},
	}

	if cfg.Store.Backend == "redis" {
		sessionStore, err := session.NewRedisStore(session.RedisConfig{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			Prefix:   cfg.Store.Redis.Prefix + ":session:",
			TTL:      cfg.Store.Redis.TTL,
			PoolSize: cfg.Store.Redis.PoolSize,
		})
		if err != nil {
			return nil, fmt.Errorf("redis session store: %w", err)
		}
		memoryStore, err := memory.NewRedisStore(memory.RedisConfig{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			Prefix:   cfg.Store.Redis.Prefix + ":memory:",
			TTL:      cfg.Store.Redis.TTL,
			PoolSize: cfg.Store.Redis.PoolSize,
		})
		if err != nil {
			return nil, fmt.Errorf("redis memory store: %w", err)
		}
		opts = append(opts, func(o *researchmesh.Options) {
			o.SessionStore = sessionStore
			o.MemoryStore = memoryStore
		})
	}

	return researchmesh.New(opts...), nil
}

// plannerConfig is the planner's typed configuration; its schema is derived
// via reflection and enforced at worker registration.
type plannerConfig struct {
	Topic    string `json:"topic" description:"Research topic the outline covers"`
	Audience string `json:"audience,omitempty" description:"Intended audience for the report"`
}

func registerWorkerTypes(mesh *researchmesh.ResearchMesh) {
	must(mesh.RegisterWorkerType(&worker.Definition{
		Type:         "planner",
		Description:  "Drafts a research outline for the session topic",
		ConfigSchema: util.CreateSchema(plannerConfig{}),
		PerformWork: func(ctx context.Context, wc *worker.Context) error {
			wc.UpdateProgress(10, "planning")

			prompt, err := wc.RenderPrompt(
				`Write a concise research outline with 3 sections for: {{.topic}}` +
					`{{if .audience}} The audience is {{.audience}}.{{end}}`)
			if err != nil {
				return err
			}
			outline, err := wc.Generate(ctx, prompt)
			if err != nil {
				return err
			}

			if _, err := wc.CreateArtifact(ctx, "outline", map[string]any{"text": outline}, nil); err != nil {
				return err
			}
			return wc.StoreShared(ctx, "outline", outline)
		},
	}))

	must(mesh.RegisterWorkerType(&worker.Definition{
		Type:         "writer",
		Description:  "Turns the planner's outline into a report",
		Dependencies: []string{"outline"},
		PerformWork: func(ctx context.Context, wc *worker.Context) error {
			sv, ok, err := wc.RetrieveShared(ctx, "outline")
			if err != nil || !ok {
				return fmt.Errorf("outline unavailable: %w", err)
			}

			wc.UpdateProgress(40, "writing")
			report, err := wc.Generate(ctx, fmt.Sprintf("Write a short report following this outline:\n%s", sv.Value))
			if err != nil {
				return err
			}

			draft, err := wc.CreateArtifact(ctx, "report", map[string]any{"text": report}, nil)
			if err != nil {
				return err
			}
			_, err = wc.UpdateArtifact(ctx, draft.ID, map[string]any{"text": report}, core.ArtifactStatusFinal)
			return err
		},
	}))
}

func streamEvents(ctx context.Context, mesh *researchmesh.ResearchMesh) {
	events, cancel := mesh.Subscribe(128)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			switch e := ev.(type) {
			case core.WorkerStarted:
				log.Printf("[%s] worker %s (%s) started", e.SessionID(), e.WorkerID, e.WorkerType)
			case core.WorkerProgress:
				log.Printf("[%s] worker %s: %d%% %s", e.SessionID(), e.WorkerID, e.Percent, e.Label)
			case core.WorkerCompleted:
				log.Printf("[%s] worker %s completed", e.SessionID(), e.WorkerID)
			case core.WorkerFailed:
				log.Printf("[%s] worker %s failed: %s", e.SessionID(), e.WorkerID, e.Reason)
			case core.SessionStatusUpdated:
				log.Printf("[%s] session %s (%d/%d workers)", e.SessionID(), e.Status, e.CompletedWorkers, e.TotalWorkers)
			}
		}
	}
}

func printArtifacts(ctx context.Context, mesh *researchmesh.ResearchMesh, sessionID, userID string) {
	artifacts, err := mesh.ListArtifacts(ctx, sessionID, userID, core.ArtifactFilter{})
	if err != nil {
		log.Printf("list artifacts: %v", err)
		return
	}
	for _, a := range artifacts {
		fmt.Printf("\n--- %s (%s, %s) ---\n%v\n", a.Type, a.ID, a.Status, a.Content["text"])
	}
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
