package protohttp

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/MJE43/gameproto-dashboard/internal/dashboard"
)

func startModule(t *testing.T, token string) *Module {
	t.Helper()
	m, err := NewModule(filepath.Join(t.TempDir(), "dashboard.db"), 0, token)
	if err != nil {
		t.Fatalf("NewModule: %v", err)
	}
	if err := m.Startup(context.Background()); err != nil {
		t.Fatalf("Startup: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		m.Shutdown(ctx)
	})
	return m
}

func TestClientAgainstServer(t *testing.T) {
	m := startModule(t, "secret")
	info := m.Info()
	if !info.TokenEnabled {
		t.Error("expected token to be reported as enabled")
	}

	c := dashboard.NewClient(dashboard.Config{BaseURL: info.URL, APIToken: "secret"})
	ctx := context.Background()

	created, err := c.CreateGamePrototype(ctx, dashboard.GamePrototype{
		Name:          "Runner",
		GameID:        "g1",
		PlayerID:      "u1",
		GameplayState: dashboard.GameplayState{Lives: 3, Level: 1},
	})
	if err != nil {
		t.Fatalf("CreateGamePrototype: %v", err)
	}
	id := created.Data.ID
	if id == "" {
		t.Fatal("server did not assign an id")
	}

	updated, err := c.UpdateGamePrototype(ctx, id, dashboard.PrototypeUpdate{Description: dashboard.String("v2")})
	if err != nil {
		t.Fatalf("UpdateGamePrototype: %v", err)
	}
	if updated.Data.Description != "v2" || updated.Data.GameID != "g1" {
		t.Errorf("unexpected update result: %+v", updated.Data)
	}

	emitted, err := c.EmitGameEvent(ctx, id, dashboard.ScoreEvent(99))
	if err != nil {
		t.Fatalf("EmitGameEvent: %v", err)
	}
	if emitted.Error != nil || emitted.Data.GamePrototypeID != id {
		t.Errorf("unexpected emit result: %+v", emitted)
	}

	snap, err := c.GetDashboard(ctx)
	if err != nil {
		t.Fatalf("GetDashboard: %v", err)
	}
	if len(snap.Data.GamePrototypes) != 1 || snap.Data.GamePrototypes[0].GameplayState.Score != 99 {
		t.Errorf("unexpected snapshot: %+v", snap.Data)
	}

	_, err = c.EmitGameEvent(ctx, "ghost", dashboard.ScoreEvent(1))
	var httpErr *dashboard.HTTPError
	if !errors.As(err, &httpErr) || !httpErr.IsNotFound() {
		t.Errorf("expected 404 HTTPError, got %v", err)
	}

	anon := dashboard.NewClient(dashboard.Config{BaseURL: info.URL})
	_, err = anon.GetDashboard(ctx)
	if !errors.As(err, &httpErr) || !httpErr.IsUnauthorized() {
		t.Errorf("expected 401 HTTPError without token, got %v", err)
	}
}

func TestWatchEvents(t *testing.T) {
	m := startModule(t, "")
	c := dashboard.NewClient(dashboard.Config{BaseURL: m.Info().URL})
	ctx := context.Background()

	created, err := c.CreateGamePrototype(ctx, dashboard.GamePrototype{ID: "p1", Name: "Runner"})
	if err != nil {
		t.Fatalf("CreateGamePrototype: %v", err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	got := make(chan dashboard.GameEvent, 4)
	done := make(chan error, 1)
	go func() {
		done <- c.WatchEvents(watchCtx, func(ev dashboard.GameEvent) { got <- ev })
	}()

	deadline := time.Now().Add(2 * time.Second)
	for m.server.Hub().Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("feed subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := c.EmitGameEvent(ctx, created.Data.ID, dashboard.LevelEvent(5)); err != nil {
		t.Fatalf("EmitGameEvent: %v", err)
	}

	select {
	case ev := <-got:
		if ev.Type != dashboard.EventUpdateLevel || ev.GamePrototypeID != "p1" {
			t.Errorf("unexpected pushed event: %+v", ev)
		}
		if v, ok := ev.Value(); !ok || v != 5 {
			t.Errorf("expected level 5, got %d", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pushed event")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil after cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WatchEvents did not return after cancel")
	}
}

func TestWatchEventsUnauthorized(t *testing.T) {
	m := startModule(t, "secret")
	c := dashboard.NewClient(dashboard.Config{BaseURL: m.Info().URL})

	err := c.WatchEvents(context.Background(), func(dashboard.GameEvent) {})
	var httpErr *dashboard.HTTPError
	if !errors.As(err, &httpErr) || !httpErr.IsUnauthorized() {
		t.Fatalf("expected 401 HTTPError, got %v", err)
	}
}
