package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jacentio/bomberhub/internal/game"
	"github.com/jacentio/bomberhub/internal/httpapi"
	"github.com/jacentio/bomberhub/store"
	"github.com/jacentio/bomberhub/store/memstore"
)

type fakeService struct {
	joinErr  error
	leaveErr error
	moveErr  error

	left  []string
	moved []string
}

func (f *fakeService) Join(ctx context.Context) (game.JoinResult, error) {
	if f.joinErr != nil {
		return game.JoinResult{}, f.joinErr
	}
	return game.JoinResult{SessionID: "s1", PlayerID: "p1"}, nil
}

func (f *fakeService) Leave(ctx context.Context, playerID string) error {
	f.left = append(f.left, playerID)
	return f.leaveErr
}

func (f *fakeService) Move(ctx context.Context, playerID string, x, y int) (game.Player, error) {
	f.moved = append(f.moved, playerID)
	if f.moveErr != nil {
		return game.Player{}, f.moveErr
	}
	return game.Player{ID: playerID, Username: "player", PositionX: x, PositionY: y, SessionID: "s1"}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serve(t *testing.T, svc httpapi.Service, method, path, playerID, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := httpapi.NewRouter(httpapi.NewHandler(svc, quietLogger()), httpapi.Options{CORSOrigin: "*", Metrics: true})

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if playerID != "" {
		req.Header.Set(httpapi.PlayerHeader, playerID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// --- Join Tests ---

func TestJoinEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "success", wantStatus: http.StatusCreated},
		{name: "store failure", err: game.ErrStore, wantStatus: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, &fakeService{joinErr: tt.err}, http.MethodPost, "/sessions/join", "", "")
			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if tt.err != nil {
				return
			}
			var got map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			want := map[string]string{"session_id": "s1", "player_id": "p1"}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("body mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// --- Leave Tests ---

func TestLeaveEndpoint_PassesPlayerHeader(t *testing.T) {
	svc := &fakeService{}
	w := serve(t, svc, http.MethodPost, "/sessions/leave", "p9", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", w.Code)
	}
	if diff := cmp.Diff([]string{"p9"}, svc.left); diff != "" {
		t.Errorf("leave calls mismatch (-want +got):\n%s", diff)
	}
}

func TestLeaveEndpoint_Failure(t *testing.T) {
	w := serve(t, &fakeService{leaveErr: errors.New("boom")}, http.MethodPost, "/sessions/leave", "p9", "")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
}

// --- Move Tests ---

func TestMoveEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		playerID   string
		body       string
		err        error
		wantStatus int
		wantCalled bool
	}{
		{name: "success", playerID: "p1", body: `{"positionX":2,"positionY":5}`, wantStatus: http.StatusOK, wantCalled: true},
		{name: "zero position", playerID: "p1", body: `{"positionX":0,"positionY":0}`, wantStatus: http.StatusOK, wantCalled: true},
		{name: "missing header", body: `{"positionX":2,"positionY":5}`, wantStatus: http.StatusBadRequest},
		{name: "missing field", playerID: "p1", body: `{"positionX":2}`, wantStatus: http.StatusBadRequest},
		{name: "non integer", playerID: "p1", body: `{"positionX":"a","positionY":1}`, wantStatus: http.StatusBadRequest},
		{name: "fractional", playerID: "p1", body: `{"positionX":1.5,"positionY":1}`, wantStatus: http.StatusBadRequest},
		{name: "unknown player", playerID: "p1", body: `{"positionX":1,"positionY":1}`, err: game.ErrPlayerNotFound, wantStatus: http.StatusNotFound, wantCalled: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{moveErr: tt.err}
			w := serve(t, svc, http.MethodPatch, "/players/move", tt.playerID, tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if called := len(svc.moved) > 0; called != tt.wantCalled {
				t.Errorf("expected called=%v, got %v", tt.wantCalled, called)
			}
		})
	}
}

// --- Router Tests ---

func TestRouter_AuxiliaryEndpoints(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{name: "health", method: http.MethodGet, path: "/healthz", wantStatus: http.StatusOK},
		{name: "metrics", method: http.MethodGet, path: "/metrics", wantStatus: http.StatusOK},
		{name: "preflight", method: http.MethodOptions, path: "/players/move", wantStatus: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, &fakeService{}, tt.method, tt.path, "", "")
			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}
}

// --- End-to-end Tests ---

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(string, any) {}

func TestJoinMoveLeave_WithMemoryStore(t *testing.T) {
	cfg := store.DefaultConfig()
	cfg.Logger = quietLogger()
	mem := memstore.New()
	svc := game.NewService(store.New(mem, cfg), nopBroadcaster{}, game.Config{Logger: quietLogger()})

	w := serve(t, svc, http.MethodPost, "/sessions/join", "", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("join: expected status 201, got %d", w.Code)
	}
	var joined game.JoinResult
	if err := json.Unmarshal(w.Body.Bytes(), &joined); err != nil {
		t.Fatalf("decode join: %v", err)
	}

	w = serve(t, svc, http.MethodPatch, "/players/move", joined.PlayerID, `{"positionX":3,"positionY":1}`)
	if w.Code != http.StatusOK {
		t.Fatalf("move: expected status 200, got %d", w.Code)
	}
	var moved game.Player
	if err := json.Unmarshal(w.Body.Bytes(), &moved); err != nil {
		t.Fatalf("decode move: %v", err)
	}
	if moved.PositionX != 3 || moved.PositionY != 1 {
		t.Errorf("expected position (3,1), got (%d,%d)", moved.PositionX, moved.PositionY)
	}

	w = serve(t, svc, http.MethodPost, "/sessions/leave", joined.PlayerID, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("leave: expected status 204, got %d", w.Code)
	}
	if mem.Len() != 0 {
		t.Errorf("expected empty store after last player left, got %d documents", mem.Len())
	}
}
