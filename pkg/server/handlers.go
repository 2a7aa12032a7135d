package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/scopeworks/scout/pkg/briefing"
	"github.com/scopeworks/scout/pkg/executor"
	"github.com/scopeworks/scout/pkg/metrics"
	"github.com/scopeworks/scout/pkg/store"
	"github.com/scopeworks/scout/pkg/strategy"
	"github.com/scopeworks/scout/pkg/webhook"
)

type researchRequest struct {
	Request   string `json:"request"`
	Overrides struct {
		Category   string `json:"category,omitempty"`
		TimeWindow string `json:"time_window,omitempty"`
		Depth      string `json:"depth,omitempty"`
		Strategy   string `json:"strategy,omitempty"`
	} `json:"overrides"`
}

type researchResponse struct {
	StrategySlug string                   `json:"strategy_slug"`
	Subject      string                   `json:"subject"`
	Markdown     string                   `json:"markdown"`
	Citations    []string                 `json:"citations"`
	Errors       []string                 `json:"errors,omitempty"`
	Limitations  []string                 `json:"limitations,omitempty"`
	Metrics      *metrics.StrategyMetrics `json:"metrics,omitempty"`
}

func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Request == "" {
		writeError(w, http.StatusBadRequest, "request is required")
		return
	}

	execReq := executor.Request{UserRequest: req.Request}
	execReq.Overrides.Category = req.Overrides.Category
	execReq.Overrides.TimeWindow = strategy.TimeWindow(req.Overrides.TimeWindow)
	execReq.Overrides.Depth = strategy.Depth(req.Overrides.Depth)
	execReq.Overrides.StrategySlug = req.Overrides.Strategy

	result, err := s.runner.Execute(r.Context(), execReq)
	if err != nil {
		status, message := fatalStatus(err)
		s.logger.Warn("Research request failed", "status", status, "error", err)
		writeError(w, status, message)
		return
	}

	b := briefing.Render(result, "", time.Now().UTC())
	writeJSON(w, http.StatusOK, researchResponse{
		StrategySlug: result.StrategySlug,
		Subject:      b.Subject,
		Markdown:     b.Markdown,
		Citations:    result.Citations,
		Errors:       result.Errors,
		Limitations:  result.Limitations,
		Metrics:      result.Metrics,
	})
}

// fatalStatus maps request-fatal executor failures to HTTP statuses.
func fatalStatus(err error) (int, string) {
	var fe *executor.FatalError
	if errors.As(err, &fe) {
		switch fe.Kind {
		case executor.KindUnscopedRequest:
			return http.StatusUnprocessableEntity, "request is out of scope for this service"
		case executor.KindStrategyNotFound:
			return http.StatusNotFound, "no matching research strategy"
		case executor.KindClassification:
			return http.StatusBadGateway, "scope classification failed"
		}
	}
	return http.StatusInternalServerError, err.Error()
}

type subscriptionRequest struct {
	Email     string `json:"email"`
	Topic     string `json:"topic"`
	Frequency string `json:"frequency"`
	Active    *bool  `json:"active"`
}

func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	if s.subs == nil {
		writeError(w, http.StatusServiceUnavailable, "subscriptions require the sqlite store")
		return
	}
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sub := &store.Subscription{
		Email:     req.Email,
		Topic:     req.Topic,
		Frequency: req.Frequency,
		Active:    true,
	}
	if req.Active != nil {
		sub.Active = *req.Active
	}
	if err := s.subs.CreateSubscription(r.Context(), sub); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	if s.subs == nil {
		writeError(w, http.StatusServiceUnavailable, "subscriptions require the sqlite store")
		return
	}
	activeOnly := r.URL.Query().Get("active") == "true"
	subs, err := s.subs.ListSubscriptions(r.Context(), activeOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if subs == nil {
		subs = []*store.Subscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	if s.subs == nil {
		writeError(w, http.StatusServiceUnavailable, "subscriptions require the sqlite store")
		return
	}
	sub, err := s.subs.GetSubscription(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleUpdateSubscription(w http.ResponseWriter, r *http.Request) {
	if s.subs == nil {
		writeError(w, http.StatusServiceUnavailable, "subscriptions require the sqlite store")
		return
	}
	sub, err := s.subs.GetSubscription(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Email != "" {
		sub.Email = req.Email
	}
	if req.Topic != "" {
		sub.Topic = req.Topic
	}
	if req.Frequency != "" {
		sub.Frequency = req.Frequency
	}
	if req.Active != nil {
		sub.Active = *req.Active
	}
	if err := s.subs.UpdateSubscription(r.Context(), sub); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleDeleteSubscription(w http.ResponseWriter, r *http.Request) {
	if s.subs == nil {
		writeError(w, http.StatusServiceUnavailable, "subscriptions require the sqlite store")
		return
	}
	err := s.subs.DeleteSubscription(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type batchRun struct {
	SubscriptionID string `json:"subscription_id"`
	Topic          string `json:"topic"`
	Status         string `json:"status"`
	StrategySlug   string `json:"strategy_slug,omitempty"`
	Error          string `json:"error,omitempty"`
}

type batchResponse struct {
	Runs []batchRun `json:"runs"`
}

// handleRunBatch executes every active subscription and delivers each
// briefing to the webhook. Per-subscription failures are reported, never
// fatal to the batch.
func (s *Server) handleRunBatch(w http.ResponseWriter, r *http.Request) {
	if s.subs == nil {
		writeError(w, http.StatusServiceUnavailable, "batch runs require the sqlite store")
		return
	}
	subs, err := s.subs.ListSubscriptions(r.Context(), true)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	runs := make([]batchRun, len(subs))
	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(s.batchSize)
	for i, sub := range subs {
		g.Go(func() error {
			runs[i] = s.runOne(ctx, sub)
			return nil
		})
	}
	_ = g.Wait()

	writeJSON(w, http.StatusOK, batchResponse{Runs: runs})
}

func (s *Server) runOne(ctx context.Context, sub *store.Subscription) batchRun {
	run := batchRun{SubscriptionID: sub.ID, Topic: sub.Topic}

	result, err := s.runner.Execute(ctx, executor.Request{UserRequest: sub.Topic})
	if err != nil {
		run.Status = "failed"
		run.Error = err.Error()
		return run
	}
	run.StrategySlug = result.StrategySlug

	b := briefing.Render(result, sub.Topic, time.Now().UTC())
	err = s.hook.Deliver(ctx, &webhook.Delivery{
		SubscriptionID: sub.ID,
		Email:          sub.Email,
		Topic:          sub.Topic,
		StrategySlug:   result.StrategySlug,
		Subject:        b.Subject,
		Markdown:       b.Markdown,
		GeneratedAt:    time.Now().UTC(),
	})
	if err != nil {
		run.Status = "delivery_failed"
		run.Error = err.Error()
		return run
	}
	run.Status = "delivered"
	return run
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
