package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"
)

// captured records what the test server saw for a single request.
type captured struct {
	method      string
	path        string
	contentType string
	auth        string
	body        []byte
}

func newCaptureServer(t *testing.T, status int, respBody string) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.EscapedPath()
		got.contentType = r.Header.Get("Content-Type")
		got.auth = r.Header.Get("Authorization")
		got.body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(respBody))
	}))
	t.Cleanup(server.Close)
	return server, got
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Config{})
	if c.BaseURL() != DefaultBaseURL {
		t.Errorf("default base URL: expected %s, got %s", DefaultBaseURL, c.BaseURL())
	}

	c = NewClient(Config{BaseURL: "http://example.test/api/"})
	if c.BaseURL() != "http://example.test/api" {
		t.Errorf("trailing slash not trimmed: %s", c.BaseURL())
	}
}

func TestGetDashboard(t *testing.T) {
	resp := `{"gamePrototypes":[{"id":"p1","name":"Runner","description":"","gameId":"g1","playerId":"u1",
		"gameplayState":{"score":10,"lives":3,"level":2},
		"createdAt":"2026-01-02T03:04:05Z","updatedAt":"2026-01-02T03:04:05Z"}],
		"gameEvents":[{"type":"UPDATE_SCORE","data":{"score":10}}]}`
	server, got := newCaptureServer(t, http.StatusOK, resp)

	c := NewClient(Config{BaseURL: server.URL, HTTPClient: server.Client()})
	out, err := c.GetDashboard(context.Background())
	if err != nil {
		t.Fatalf("GetDashboard failed: %v", err)
	}

	if got.method != http.MethodGet || got.path != "/dashboard" {
		t.Errorf("expected GET /dashboard, got %s %s", got.method, got.path)
	}
	if got.contentType != "" {
		t.Errorf("GET should not set Content-Type, got %q", got.contentType)
	}
	if len(got.body) != 0 {
		t.Errorf("GET should not send a body, got %q", got.body)
	}
	if out.Error != nil {
		t.Errorf("expected nil error field, got %q", *out.Error)
	}
	if len(out.Data.GamePrototypes) != 1 || out.Data.GamePrototypes[0].GameplayState.Level != 2 {
		t.Errorf("unexpected prototypes: %+v", out.Data.GamePrototypes)
	}
	if len(out.Data.GameEvents) != 1 {
		t.Fatalf("expected 1 event, got %d", len(out.Data.GameEvents))
	}
	if v, ok := out.Data.GameEvents[0].Value(); !ok || v != 10 {
		t.Errorf("event value: expected 10, got %d (ok=%v)", v, ok)
	}
}

func TestCreateGamePrototype(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := GamePrototype{
		ID:            "p1",
		Name:          "Runner",
		Description:   "endless runner",
		GameID:        "g1",
		PlayerID:      "u1",
		GameplayState: GameplayState{Score: 0, Lives: 3, Level: 1},
		CreatedAt:     created,
		UpdatedAt:     created,
	}
	echo, _ := json.Marshal(in)
	server, got := newCaptureServer(t, http.StatusCreated, string(echo))

	c := NewClient(Config{BaseURL: server.URL, HTTPClient: server.Client(), APIToken: "tok"})
	out, err := c.CreateGamePrototype(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateGamePrototype failed: %v", err)
	}

	if got.method != http.MethodPost || got.path != "/game-prototypes" {
		t.Errorf("expected POST /game-prototypes, got %s %s", got.method, got.path)
	}
	if got.contentType != "application/json" {
		t.Errorf("missing Content-Type header, got %q", got.contentType)
	}
	if got.auth != "Bearer tok" {
		t.Errorf("expected bearer token, got %q", got.auth)
	}
	if string(got.body) != string(echo) {
		t.Errorf("body mismatch:\n got  %s\n want %s", got.body, echo)
	}
	if !reflect.DeepEqual(out.Data, in) {
		t.Errorf("decoded data mismatch: %+v", out.Data)
	}
	if out.Error != nil {
		t.Errorf("expected nil error field")
	}
}

func TestUpdateGamePrototype(t *testing.T) {
	server, got := newCaptureServer(t, http.StatusOK, `{"id":"a b","name":"Renamed"}`)

	c := NewClient(Config{BaseURL: server.URL, HTTPClient: server.Client()})
	patch := PrototypeUpdate{Name: String("Renamed")}
	out, err := c.UpdateGamePrototype(context.Background(), "a b", patch)
	if err != nil {
		t.Fatalf("UpdateGamePrototype failed: %v", err)
	}

	if got.method != http.MethodPatch || got.path != "/game-prototypes/a%20b" {
		t.Errorf("expected PATCH /game-prototypes/a%%20b, got %s %s", got.method, got.path)
	}
	if got.contentType != "application/json" {
		t.Errorf("missing Content-Type header")
	}
	if string(got.body) != `{"name":"Renamed"}` {
		t.Errorf("partial body should only carry set fields, got %s", got.body)
	}
	if out.Data.Name != "Renamed" || out.Data.ID != "a b" {
		t.Errorf("unexpected data: %+v", out.Data)
	}
}

func TestEmitGameEvent(t *testing.T) {
	server, got := newCaptureServer(t, http.StatusCreated, `{"type":"UPDATE_LIVES","data":{"lives":2},"gamePrototypeId":"p1"}`)

	c := NewClient(Config{BaseURL: server.URL, HTTPClient: server.Client()})
	out, err := c.EmitGameEvent(context.Background(), "p1", LivesEvent(2))
	if err != nil {
		t.Fatalf("EmitGameEvent failed: %v", err)
	}

	if got.method != http.MethodPost || got.path != "/game-prototypes/p1/events" {
		t.Errorf("expected POST /game-prototypes/p1/events, got %s %s", got.method, got.path)
	}
	if string(got.body) != `{"type":"UPDATE_LIVES","data":{"lives":2}}` {
		t.Errorf("unexpected body: %s", got.body)
	}
	if out.Data.Type != EventUpdateLives || out.Data.GamePrototypeID != "p1" {
		t.Errorf("unexpected event: %+v", out.Data)
	}
	if v, ok := out.Data.Value(); !ok || v != 2 {
		t.Errorf("expected lives 2, got %d", v)
	}
}

func TestNon2xxReturnsHTTPError(t *testing.T) {
	server, _ := newCaptureServer(t, http.StatusNotFound, `{"error":{"code":"NOT_FOUND","message":"no such prototype"}}`)

	c := NewClient(Config{BaseURL: server.URL, HTTPClient: server.Client()})
	out, err := c.UpdateGamePrototype(context.Background(), "missing", PrototypeUpdate{Name: String("x")})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if out != nil {
		t.Errorf("expected nil envelope on failure, got %+v", out)
	}

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *HTTPError, got %T: %v", err, err)
	}
	if !httpErr.IsNotFound() {
		t.Errorf("expected 404, got %d", httpErr.StatusCode)
	}
	if httpErr.Method != http.MethodPatch || httpErr.Path != "/game-prototypes/missing" {
		t.Errorf("unexpected request info: %s %s", httpErr.Method, httpErr.Path)
	}
}

func TestHTTPErrorClassification(t *testing.T) {
	tests := []struct {
		status       int
		notFound     bool
		unauthorized bool
		serverError  bool
	}{
		{404, true, false, false},
		{401, false, true, false},
		{403, false, true, false},
		{500, false, false, true},
		{503, false, false, true},
		{422, false, false, false},
	}
	for _, tt := range tests {
		e := &HTTPError{StatusCode: tt.status}
		if e.IsNotFound() != tt.notFound || e.IsUnauthorized() != tt.unauthorized || e.IsServerError() != tt.serverError {
			t.Errorf("HTTP %d: classification mismatch", tt.status)
		}
	}
}

func TestMalformedJSONFails(t *testing.T) {
	server, _ := newCaptureServer(t, http.StatusOK, `{"gamePrototypes": [`)

	c := NewClient(Config{BaseURL: server.URL, HTTPClient: server.Client()})
	out, err := c.GetDashboard(context.Background())
	if err == nil {
		t.Fatal("expected decode error, got nil")
	}
	if out != nil {
		t.Errorf("expected nil envelope on failure")
	}
}

func TestTransportErrorPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := NewClient(Config{BaseURL: url})
	if _, err := c.GetDashboard(context.Background()); err == nil {
		t.Fatal("expected transport error against closed server")
	}
}

func TestContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL, HTTPClient: server.Client()})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.GetDashboard(ctx)
	if err == nil {
		t.Fatal("expected error after context timeout")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
