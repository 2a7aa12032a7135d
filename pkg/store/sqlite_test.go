package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "scout.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDocumentRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.IndexDoc(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.PutStrategyDoc(ctx, "deep_dive", []byte("slug: deep_dive")))
	require.NoError(t, s.PutStrategyDoc(ctx, "daily_news", []byte("slug: daily_news")))
	require.NoError(t, s.PutStrategyDoc(ctx, "daily_news", []byte("slug: daily_news\nversion: 2")))
	require.NoError(t, s.PutIndexDoc(ctx, []byte("strategies: []")))
	require.NoError(t, s.PutSettingsDoc(ctx, []byte("stages: {}")))

	docs, err := s.StrategyDocs(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2, "upsert replaces, ordered by slug")
	assert.Contains(t, string(docs[0]), "version: 2")
	assert.Equal(t, "slug: deep_dive", string(docs[1]))

	idx, err := s.IndexDoc(ctx)
	require.NoError(t, err)
	assert.Equal(t, "strategies: []", string(idx))

	settings, err := s.SettingsDoc(ctx)
	require.NoError(t, err)
	assert.Equal(t, "stages: {}", string(settings))
}

func TestSubscriptionLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sub := &Subscription{Email: "ana@example.com", Topic: "quantum computing", Active: true}
	require.NoError(t, s.CreateSubscription(ctx, sub))
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, "daily", sub.Frequency)

	paused := &Subscription{Email: "bo@example.com", Topic: "fusion", Frequency: "weekly"}
	require.NoError(t, s.CreateSubscription(ctx, paused))

	got, err := s.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "quantum computing", got.Topic)
	assert.True(t, got.Active)

	active, err := s.ListSubscriptions(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, sub.ID, active[0].ID)

	all, err := s.ListSubscriptions(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	got.Active = false
	got.Topic = "quantum networking"
	require.NoError(t, s.UpdateSubscription(ctx, got))

	active, err = s.ListSubscriptions(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	require.NoError(t, s.DeleteSubscription(ctx, sub.ID))
	_, err = s.GetSubscription(ctx, sub.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteSubscription(ctx, sub.ID), ErrNotFound)
}

func TestCreateSubscriptionValidation(t *testing.T) {
	s := openTestStore(t)

	err := s.CreateSubscription(context.Background(), &Subscription{Email: "x@example.com"})
	assert.Error(t, err)
}
