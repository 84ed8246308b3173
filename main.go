package main

import (
	"log"
	"net/http"

	"go.uber.org/zap"

	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/config"
	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/handlers"
	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/kb"
	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/llm"
	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/middleware"
	"github.com/Intelligent-Repair/IntelligentRepair-sub001/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := buildLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
		zap.Int("negation_window", cfg.Matching.NegationWindow))

	// The knowledge base is the engine's source of truth; refusing to start
	// on a validation error beats serving wrong diagnostic flows.
	knowledge, err := kb.Load(kb.LoadOptions{
		SafetyPath:     cfg.KB.SafetyPath,
		LightsPath:     cfg.KB.LightsPath,
		SymptomsPath:   cfg.KB.SymptomsPath,
		NegationWindow: cfg.Matching.NegationWindow,
	})
	if err != nil {
		logger.Fatal("Failed to load knowledge base", zap.Error(err))
	}
	logger.Info("Knowledge base loaded",
		zap.Int("safety_rules", len(knowledge.SafetyRules)),
		zap.Int("lights", len(knowledge.Lights)),
		zap.Int("mappings", len(knowledge.Mappings)))

	// A missing or broken provider degrades diagnoses to the knowledge-base
	// fallback; it never blocks startup.
	var client llm.Client
	client, err = llm.New(&llm.Config{
		Provider: cfg.LLM.Provider,
		Endpoint: cfg.LLM.Endpoint,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
	}, logger)
	if err != nil {
		logger.Warn("Text-generation client unavailable, running knowledge-base only", zap.Error(err))
		client = nil
	}

	generator := services.NewGenerator(client, &cfg.LLM, logger)
	engine := services.NewEngine(knowledge, generator, logger, cfg.Conversation.SessionTTL())
	defer engine.Close()

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewDiagnoseHandler(engine, logger).RegisterRoutes(mux)

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting fault-intake-engine", zap.String("addr", addr), zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func buildLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
