// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package server wires the model-runner service: router, middleware,
// metrics, and the executor registry bootstrap.
package server

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"axonflow/modelrunner/agents"
	"axonflow/modelrunner/config"
	"axonflow/modelrunner/db"
	"axonflow/modelrunner/pricing"
	"axonflow/modelrunner/runner"
)

// Run is the exported entry point for the model-runner service.
//
// It loads configuration, connects the pricing store and cache, builds
// the executor registry for all seven providers, sets up HTTP routes,
// and starts the server. The function blocks until the server shuts
// down; any wiring failure is fatal.
//
// Environment variables used:
//   - CONFIG_FILE: optional YAML config path
//   - PORT, DATABASE_URL, REDIS_ADDR, PRICE_TTL, AGENT_MANAGER_URL
//   - AEAD_SECRET_KEY: storage-state sealing key (hex)
func Run() {
	log.Println("Starting AxonFlow Model Runner...")

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	store, err := db.OpenDB(cfg.DatabaseURL, cfg.AEADKey)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	defer func() {
		_ = store.Close()
	}()

	var cache *pricing.Cache
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		cache = pricing.NewCache(redisClient, time.Duration(cfg.PriceTTL))
	}
	prices := pricing.NewService(pricing.NewPostgresRepository(store.DB()), cache)

	run, err := runner.NewRunner(buildExecutors(prices))
	if err != nil {
		log.Fatalf("Executor registry error: %v", err)
	}

	var agentClient *agents.Client
	if cfg.AgentManager != "" {
		agentClient = agents.NewClient(cfg.AgentManager)
	}

	s := NewServer(run, prices, store, agentClient)

	// Setup router
	r := mux.NewRouter()

	// CORS middleware
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	// Health check
	r.HandleFunc("/health", s.healthHandler).Methods("GET")

	// Metrics endpoint
	r.Handle("/prometheus", promhttp.Handler()).Methods("GET")

	// Chat completion endpoint
	r.HandleFunc("/v1/chat/completions", s.chatCompletionsHandler).Methods("POST")

	// Agent proxy endpoint
	r.HandleFunc("/v1/agent/run", s.agentRunHandler).Methods("POST")

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("AxonFlow Model Runner listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, c.Handler(r)))
}
