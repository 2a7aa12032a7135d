package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scopeworks/scout/pkg/config"
)

func TestDeliverSignsPayload(t *testing.T) {
	var gotBody []byte
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get(SignatureHeader)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := New(config.WebhookConfig{URL: srv.URL, Secret: "s3cret", Timeout: 5})
	require.NotNil(t, client)

	err := client.Deliver(context.Background(), &Delivery{
		Topic:        "AI lab news",
		StrategySlug: "daily_news_briefing",
		Subject:      "AI lab news: Aug 24, 2026",
		Markdown:     "# AI lab news\n",
	})
	require.NoError(t, err)

	assert.True(t, Verify("s3cret", gotBody, gotSig))
	assert.False(t, Verify("wrong", gotBody, gotSig))

	var d Delivery
	require.NoError(t, json.Unmarshal(gotBody, &d))
	assert.Equal(t, "daily_news_briefing", d.StrategySlug)
}

func TestDeliverRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := New(config.WebhookConfig{URL: srv.URL, Timeout: 5})
	err := client.Deliver(context.Background(), &Delivery{Topic: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestNilClientDropsDeliveries(t *testing.T) {
	var client *Client
	assert.Nil(t, New(config.WebhookConfig{}))
	assert.NoError(t, client.Deliver(context.Background(), &Delivery{Topic: "x"}))
}
