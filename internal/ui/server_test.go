package ui

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dokzlo13/lampd/internal/color"
	"github.com/dokzlo13/lampd/internal/eventbus"
	"github.com/dokzlo13/lampd/internal/lampsync"
)

type fakeEngine struct {
	mu      sync.Mutex
	state   lampsync.State
	editErr error
	edits   chan color.Color

	// onSnapshot runs before the state is copied, outside the lock.
	onSnapshot func()
}

func newFakeEngine(initialized bool, c color.Color) *fakeEngine {
	return &fakeEngine{
		state: lampsync.State{Current: c, Initialized: initialized},
		edits: make(chan color.Color, 10),
	}
}

func (f *fakeEngine) UserEdit(_ context.Context, c color.Color) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return f.editErr
	}
	f.state.Current = c
	f.state.PendingWrite = true
	f.edits <- c
	return nil
}

func (f *fakeEngine) Snapshot(context.Context) (lampsync.State, error) {
	f.mu.Lock()
	hook := f.onSnapshot
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, nil
}

func newTestServer(engine Engine) *Server {
	return NewServer(Deps{Host: "127.0.0.1", Port: 0, Engine: engine, CoalesceWindow: 200 * time.Millisecond})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReady(t *testing.T) {
	engine := newFakeEngine(false, color.Color{})
	h := newTestServer(engine).Handler()

	rec := do(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("/health = %d", rec.Code)
	}
	var health struct {
		Status  string `json:"status"`
		Clients *int   `json:"clients"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode /health: %v", err)
	}
	if health.Status != "healthy" || health.Clients == nil || *health.Clients != 0 {
		t.Errorf("/health body = %s", rec.Body)
	}
	if rec := do(t, h, http.MethodGet, "/ready", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/ready before init = %d, want 503", rec.Code)
	}

	engine.mu.Lock()
	engine.state.Initialized = true
	engine.mu.Unlock()

	if rec := do(t, h, http.MethodGet, "/ready", ""); rec.Code != http.StatusOK {
		t.Errorf("/ready after init = %d, want 200", rec.Code)
	}
}

func TestIndexPage(t *testing.T) {
	h := newTestServer(newFakeEngine(true, color.Color{})).Handler()
	rec := do(t, h, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `id="colorPicker"`) {
		t.Errorf("GET / = %d, body missing the picker", rec.Code)
	}
}

func TestGetColor(t *testing.T) {
	h := newTestServer(newFakeEngine(true, color.Color{R: 10, G: 20, B: 30})).Handler()

	rec := do(t, h, http.MethodGet, "/api/color", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/color = %d", rec.Code)
	}

	var resp stateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Initialized || resp.Color == nil || resp.Color.Hex != "#0a141e" || resp.Color.Decimal != "10,20,30" {
		t.Errorf("response = %+v", resp)
	}
	if resp.Color.Scene.Light != (color.Color{R: 10, G: 20, B: 30}) {
		t.Errorf("scene light = %v", resp.Color.Scene.Light)
	}
}

func TestSetColor(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		editErr  error
		wantCode int
		want     *color.Color
	}{
		{"hex", `{"color":"#ff0000"}`, nil, http.StatusOK, &color.Color{R: 255}},
		{"decimal", `{"color":"0,0,255"}`, nil, http.StatusOK, &color.Color{B: 255}},
		{"bad color", `{"color":"red"}`, nil, http.StatusBadRequest, nil},
		{"bad json", `{`, nil, http.StatusBadRequest, nil},
		{"not ready", `{"color":"#ff0000"}`, lampsync.ErrNotReady, http.StatusConflict, nil},
		{"stopped", `{"color":"#ff0000"}`, lampsync.ErrStopped, http.StatusServiceUnavailable, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newFakeEngine(true, color.Color{})
			engine.editErr = tt.editErr
			h := newTestServer(engine).Handler()

			rec := do(t, h, http.MethodPut, "/api/color", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("PUT /api/color = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body)
			}
			if tt.want == nil {
				if len(engine.edits) != 0 {
					t.Error("engine received an edit")
				}
				return
			}
			if got := <-engine.edits; got != *tt.want {
				t.Errorf("edit = %v, want %v", got, *tt.want)
			}
			var resp stateResponse
			json.Unmarshal(rec.Body.Bytes(), &resp)
			if !resp.PendingWrite {
				t.Error("response does not show the pending write")
			}
		})
	}
}

func readWS(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read websocket: %v", err)
	}
	return msg
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketFlow(t *testing.T) {
	engine := newFakeEngine(true, color.Color{R: 10, G: 20, B: 30})
	s := newTestServer(engine)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dialWS(t, srv)

	first := readWS(t, conn)
	if first.Type != WSTypeColor || first.EventType != string(eventbus.EventTypeColorInitialized) {
		t.Fatalf("first message = %+v", first)
	}
	var payload colorPayload
	json.Unmarshal(first.Payload, &payload)
	if payload.Hex != "#0a141e" {
		t.Errorf("initial hex = %s", payload.Hex)
	}

	// A drag burst collapses into the last color.
	for _, hex := range []string{"#100000", "#200000", "#300000"} {
		raw, _ := json.Marshal(wsSetPayload{Color: hex})
		conn.WriteJSON(WSMessage{Type: WSTypeSet, Payload: raw})
	}
	select {
	case got := <-engine.edits:
		if got != (color.Color{R: 0x30}) {
			t.Errorf("coalesced edit = %v, want #300000", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("picker burst never reached the engine")
	}

	s.HandleEvent(eventbus.Event{Type: eventbus.EventTypeColorChanged, Color: color.Color{B: 255}})
	changed := readWS(t, conn)
	json.Unmarshal(changed.Payload, &payload)
	if changed.EventType != string(eventbus.EventTypeColorChanged) || payload.Hex != "#0000ff" {
		t.Errorf("broadcast = %+v %+v", changed, payload)
	}

	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"nope"}`))
	if msg := readWS(t, conn); msg.Type != WSTypeError {
		t.Errorf("bad message reply = %+v, want error", msg)
	}
}

func TestWebSocketBeforeInit(t *testing.T) {
	engine := newFakeEngine(false, color.Color{})
	engine.editErr = lampsync.ErrNotReady
	s := newTestServer(engine)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dialWS(t, srv)

	raw, _ := json.Marshal(wsSetPayload{Color: "#ffffff", Final: true})
	conn.WriteJSON(WSMessage{Type: WSTypeSet, Payload: raw})

	msg := readWS(t, conn)
	if msg.Type != WSTypeError {
		t.Fatalf("message = %+v, want the edit rejection", msg)
	}
	if !strings.Contains(string(msg.Payload), "no color loaded") {
		t.Errorf("error payload = %s", msg.Payload)
	}
}

func expectSilence(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(wait))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err == nil {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func waitClients(t *testing.T, s *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", s.hub.ClientCount(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHealthCountsClients(t *testing.T) {
	s := newTestServer(newFakeEngine(false, color.Color{}))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	dialWS(t, srv)
	dialWS(t, srv)

	deadline := time.Now().Add(2 * time.Second)
	for {
		var health struct {
			Clients int `json:"clients"`
		}
		rec := do(t, s.Handler(), http.MethodGet, "/health", "")
		json.Unmarshal(rec.Body.Bytes(), &health)
		if health.Clients == 2 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("/health clients = %d, want 2", health.Clients)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestChangeDuringConnectWinsOverGreeting(t *testing.T) {
	engine := newFakeEngine(true, color.Color{R: 10, G: 20, B: 30})
	s := newTestServer(engine)
	// The lamp changes after the page registered but before its greeting
	// snapshot is sent. The snapshot still holds the old color.
	engine.onSnapshot = func() {
		s.HandleEvent(eventbus.Event{Type: eventbus.EventTypeColorChanged, Color: color.Color{B: 255}})
	}
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dialWS(t, srv)

	msg := readWS(t, conn)
	var payload colorPayload
	json.Unmarshal(msg.Payload, &payload)
	if msg.EventType != string(eventbus.EventTypeColorChanged) || payload.Hex != "#0000ff" {
		t.Fatalf("first message = %+v %+v, want the change to #0000ff", msg, payload)
	}
	expectSilence(t, conn, 200*time.Millisecond)
}

func TestEditErrorGoesToSenderOnly(t *testing.T) {
	engine := newFakeEngine(false, color.Color{})
	engine.editErr = lampsync.ErrNotReady
	s := newTestServer(engine)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	tests := []struct {
		name  string
		final bool
	}{
		{"coalesced", false},
		{"final", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := dialWS(t, srv)
			other := dialWS(t, srv)
			waitClients(t, s, 2)

			raw, _ := json.Marshal(wsSetPayload{Color: "#ffffff", Final: tt.final})
			sender.WriteJSON(WSMessage{Type: WSTypeSet, Payload: raw})

			msg := readWS(t, sender)
			if msg.Type != WSTypeError || !strings.Contains(string(msg.Payload), "no color loaded") {
				t.Fatalf("sender got %+v, want the edit rejection", msg)
			}
			expectSilence(t, other, 300*time.Millisecond)

			sender.Close()
			other.Close()
			waitClients(t, s, 0)
		})
	}
}
