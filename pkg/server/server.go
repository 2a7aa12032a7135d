// Copyright 2025 The Scout Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server exposes the HTTP API: one-shot research, subscription
// management and the scheduled batch trigger.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scopeworks/scout/pkg/config"
	"github.com/scopeworks/scout/pkg/executor"
	"github.com/scopeworks/scout/pkg/store"
	"github.com/scopeworks/scout/pkg/webhook"
)

// Runner executes one research request end to end.
type Runner interface {
	Execute(ctx context.Context, req executor.Request) (*executor.Result, error)
}

// SubscriptionStore is the slice of the store the server needs. Nil when
// running on the file strategy source.
type SubscriptionStore interface {
	CreateSubscription(ctx context.Context, sub *store.Subscription) error
	GetSubscription(ctx context.Context, id string) (*store.Subscription, error)
	ListSubscriptions(ctx context.Context, activeOnly bool) ([]*store.Subscription, error)
	UpdateSubscription(ctx context.Context, sub *store.Subscription) error
	DeleteSubscription(ctx context.Context, id string) error
}

// Server hosts the HTTP API.
type Server struct {
	cfg       config.ServerConfig
	runner    Runner
	subs      SubscriptionStore
	hook      *webhook.Client
	batchSize int
	logger    *slog.Logger

	httpServer *http.Server
}

// New assembles the server. subs may be nil; subscription endpoints then
// answer 503.
func New(cfg config.ServerConfig, runner Runner, subs SubscriptionStore, hook *webhook.Client, batchSize int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = 4
	}
	return &Server{
		cfg:       cfg,
		runner:    runner,
		subs:      subs,
		hook:      hook,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/research", s.handleResearch)
		r.Post("/run-batch", s.handleRunBatch)

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", s.handleCreateSubscription)
			r.Get("/", s.handleListSubscriptions)
			r.Get("/{id}", s.handleGetSubscription)
			r.Put("/{id}", s.handleUpdateSubscription)
			r.Delete("/{id}", s.handleDeleteSubscription)
		})
	})

	return r
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "address", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// authMiddleware enforces the shared bearer secret. An empty secret
// disables auth for local development.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.SharedSecret != "" {
			if r.Header.Get("Authorization") != "Bearer "+s.cfg.SharedSecret {
				writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
