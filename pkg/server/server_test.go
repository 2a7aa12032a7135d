package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scopeworks/scout/pkg/config"
	"github.com/scopeworks/scout/pkg/executor"
	"github.com/scopeworks/scout/pkg/store"
	"github.com/scopeworks/scout/pkg/webhook"
)

type stubRunner struct {
	result *executor.Result
	err    error
	calls  int
}

func (r *stubRunner) Execute(ctx context.Context, req executor.Request) (*executor.Result, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	res := *r.result
	if res.Variables == nil {
		res.Variables = map[string]any{"topic": req.UserRequest}
	}
	return &res, nil
}

func testServer(t *testing.T, runner Runner, subs SubscriptionStore, hook *webhook.Client, secret string) *httptest.Server {
	t.Helper()
	s := New(config.ServerConfig{SharedSecret: secret}, runner, subs, hook, 2, nil)
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return srv
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "scout.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestResearchEndpoint(t *testing.T) {
	runner := &stubRunner{result: &executor.Result{
		StrategySlug: "daily_news_briefing",
		Sections:     []string{"Lab A shipped<sup>[1]</sup>."},
		Citations:    []string{"a (2026-08-23) http://a/x"},
	}}
	srv := testServer(t, runner, nil, nil, "")

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/research", "", map[string]any{
		"request": "What happened in AI labs this week?",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[researchResponse](t, resp)
	assert.Equal(t, "daily_news_briefing", body.StrategySlug)
	assert.Contains(t, body.Markdown, "Lab A shipped<sup>[1]</sup>.")
	assert.Contains(t, body.Markdown, "## Sources")
}

func TestResearchRejectsOutOfScope(t *testing.T) {
	runner := &stubRunner{err: &executor.FatalError{
		Kind: executor.KindUnscopedRequest, Phase: "scope",
	}}
	srv := testServer(t, runner, nil, nil, "")

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/research", "", map[string]any{"request": "write me a poem"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestResearchRequiresRequest(t *testing.T) {
	srv := testServer(t, &stubRunner{}, nil, nil, "")
	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/research", "", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuthMiddleware(t *testing.T) {
	srv := testServer(t, &stubRunner{result: &executor.Result{}}, nil, nil, "hunter2")

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/research", "", map[string]any{"request": "x"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/v1/research", "hunter2", map[string]any{"request": "x"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Health and metrics stay open.
	resp = doJSON(t, http.MethodGet, srv.URL+"/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = doJSON(t, http.MethodGet, srv.URL+"/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSubscriptionCRUD(t *testing.T) {
	srv := testServer(t, &stubRunner{}, testStore(t), nil, "")

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/subscriptions/", "", map[string]any{
		"email": "ana@example.com",
		"topic": "quantum computing",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[store.Subscription](t, resp)
	require.NotEmpty(t, created.ID)
	assert.True(t, created.Active)

	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/subscriptions/"+created.ID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodPut, srv.URL+"/v1/subscriptions/"+created.ID, "", map[string]any{
		"active": false,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[store.Subscription](t, resp)
	assert.False(t, updated.Active)
	assert.Equal(t, "quantum computing", updated.Topic)

	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/subscriptions/?active=true", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]store.Subscription](t, resp))

	resp = doJSON(t, http.MethodDelete, srv.URL+"/v1/subscriptions/"+created.ID, "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/v1/subscriptions/"+created.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSubscriptionsUnavailableWithoutStore(t *testing.T) {
	srv := testServer(t, &stubRunner{}, nil, nil, "")
	resp := doJSON(t, http.MethodGet, srv.URL+"/v1/subscriptions/", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRunBatchDeliversToWebhook(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateSubscription(ctx, &store.Subscription{
		Email: "ana@example.com", Topic: "quantum computing", Active: true,
	}))
	require.NoError(t, st.CreateSubscription(ctx, &store.Subscription{
		Email: "bo@example.com", Topic: "paused topic", Active: false,
	}))

	var deliveries []webhook.Delivery
	hookSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.True(t, webhook.Verify("s3cret", body, r.Header.Get(webhook.SignatureHeader)))
		var d webhook.Delivery
		require.NoError(t, json.Unmarshal(body, &d))
		deliveries = append(deliveries, d)
		w.WriteHeader(http.StatusOK)
	}))
	defer hookSrv.Close()

	runner := &stubRunner{result: &executor.Result{
		StrategySlug: "deep_dive",
		Sections:     []string{"Findings."},
	}}
	hook := webhook.New(config.WebhookConfig{URL: hookSrv.URL, Secret: "s3cret", Timeout: 5})
	srv := testServer(t, runner, st, hook, "")

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/run-batch", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[batchResponse](t, resp)
	require.Len(t, body.Runs, 1, "inactive subscriptions are skipped")
	assert.Equal(t, "delivered", body.Runs[0].Status)
	assert.Equal(t, "deep_dive", body.Runs[0].StrategySlug)

	require.Len(t, deliveries, 1)
	assert.Equal(t, "quantum computing", deliveries[0].Topic)
	assert.Equal(t, "ana@example.com", deliveries[0].Email)
}

func TestRunBatchReportsFailures(t *testing.T) {
	st := testStore(t)
	require.NoError(t, st.CreateSubscription(context.Background(), &store.Subscription{
		Email: "ana@example.com", Topic: "quantum computing", Active: true,
	}))

	runner := &stubRunner{err: &executor.FatalError{Kind: executor.KindClassification, Phase: "scope"}}
	srv := testServer(t, runner, st, nil, "")

	resp := doJSON(t, http.MethodPost, srv.URL+"/v1/run-batch", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[batchResponse](t, resp)
	require.Len(t, body.Runs, 1)
	assert.Equal(t, "failed", body.Runs[0].Status)
	assert.Contains(t, body.Runs[0].Error, "llm_classification_failed")
}
