package mapserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chrissnell/aqtimeline/internal/catalog"
	"github.com/chrissnell/aqtimeline/internal/layers"
	"github.com/chrissnell/aqtimeline/internal/renderer/remote"
	"github.com/chrissnell/aqtimeline/pkg/config"
	"github.com/chrissnell/aqtimeline/pkg/responseformat"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var testNow = time.Date(2024, 7, 3, 8, 0, 0, 0, time.UTC)

type staticProvider struct {
	cfg config.ConfigData
}

func (p *staticProvider) LoadConfig() (*config.ConfigData, error) {
	cfg := p.cfg
	cfg.ApplyDefaults()
	return &cfg, cfg.Validate()
}

func (p *staticProvider) GetCatalog() (*config.CatalogData, error)     { return &p.cfg.Catalog, nil }
func (p *staticProvider) GetScheduler() (*config.SchedulerData, error) { return &p.cfg.Scheduler, nil }
func (p *staticProvider) GetStyle() (*config.StyleData, error)         { return &p.cfg.Style, nil }
func (p *staticProvider) GetPlayback() (*config.PlaybackData, error)   { return &p.cfg.Playback, nil }
func (p *staticProvider) GetServer() (*config.ServerData, error)       { return &p.cfg.Server, nil }
func (p *staticProvider) IsReadOnly() bool                             { return true }
func (p *staticProvider) Close() error                                 { return nil }

func testRegistry(t *testing.T, days int) *catalog.Registry {
	t.Helper()
	reg, err := catalog.FromConfig(config.CatalogData{
		Window: &config.WindowData{Days: days, HoursPerChunk: 6},
	}, testNow, nil)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	return reg
}

func newTestServer(t *testing.T) (*Controller, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	provider := &staticProvider{cfg: config.ConfigData{
		Catalog: config.CatalogData{Window: &config.WindowData{Days: 2, HoursPerChunk: 6}},
		Server:  config.ServerData{EnableCORS: true},
	}}
	ctrl, err := NewController(ctx, nil, provider, testRegistry(t, 2), zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	srv := httptest.NewServer(ctrl.Handler())
	t.Cleanup(srv.Close)
	return ctrl, srv
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url, body string, v any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return conn
}

// drain reads frames until the connection closes so the session never
// stalls on a full socket.
func drain(conn *websocket.Conn, frames chan<- remote.Frame) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			close(frames)
			return
		}
		var f remote.Frame
		if responseformat.Decode(responseformat.JSON, data, &f) == nil {
			select {
			case frames <- f:
			default:
			}
		}
	}
}

func TestGetCatalog(t *testing.T) {
	_, srv := newTestServer(t)

	var got CatalogResponse
	if code := getJSON(t, srv.URL+"/api/catalog", &got); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if got.Epoch != "2024-07-01" || got.Days != 2 || got.TotalHours != 48 || len(got.Chunks) != 8 {
		t.Errorf("catalog = %+v", got)
	}
}

func TestGetCatalogMsgPack(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/catalog?format=msgpack")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-msgpack" {
		t.Fatalf("Content-Type = %q", ct)
	}
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	var got CatalogResponse
	if err := responseformat.Decode(responseformat.MsgPack, buf.Bytes(), &got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.TotalHours != 48 {
		t.Errorf("total hours = %d, want 48", got.TotalHours)
	}
}

func TestCORSPreflight(t *testing.T) {
	_, srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/sessions/x/seek", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Origin", "https://map.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestUnknownSession(t *testing.T) {
	_, srv := newTestServer(t)

	var sessions []SessionInfo
	if code := getJSON(t, srv.URL+"/api/sessions", &sessions); code != http.StatusOK || len(sessions) != 0 {
		t.Errorf("sessions = %d %v", code, sessions)
	}
	if code := getJSON(t, srv.URL+"/api/sessions/nope", nil); code != http.StatusNotFound {
		t.Errorf("GET unknown session = %d, want 404", code)
	}
	if code := postJSON(t, srv.URL+"/api/sessions/nope/play", "", nil); code != http.StatusNotFound {
		t.Errorf("POST unknown session = %d, want 404", code)
	}
}

func TestWebsocketSession(t *testing.T) {
	ctrl, srv := newTestServer(t)

	conn := dial(t, srv)
	frames := make(chan remote.Frame, 4096)
	go drain(conn, frames)

	var id string
	waitFor(t, "session registration", func() bool {
		list := ctrl.Hub.Sessions()
		if len(list) == 1 {
			id = list[0].ID
			return true
		}
		return false
	})

	if err := conn.WriteJSON(remote.ClientMessage{Type: remote.MsgStyleData}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	sessionURL := srv.URL + "/api/sessions/" + id
	var snap layers.Snapshot
	waitFor(t, "layers initialized", func() bool {
		getJSON(t, sessionURL, &snap)
		return snap.Lifecycle == layers.Ready.String() && len(snap.Resident) > 0
	})

	sawAdd := false
	waitFor(t, "addSource command", func() bool {
		for {
			select {
			case f, ok := <-frames:
				if !ok {
					return sawAdd
				}
				if f.Type == remote.FrameCommand && f.Command.Op == remote.OpAddSource {
					sawAdd = true
				}
			default:
				return sawAdd
			}
		}
	})

	if code := postJSON(t, sessionURL+"/seek", `{"hour": 30}`, &snap); code != http.StatusOK {
		t.Fatalf("seek status = %d", code)
	}
	if snap.Index != 30 || !snap.Instant.Found || snap.Instant.Hour != 6 {
		t.Errorf("after seek: index %d instant %+v", snap.Index, snap.Instant)
	}

	if code := postJSON(t, sessionURL+"/threshold", `{"value": 35.5}`, &snap); code != http.StatusOK || snap.Threshold != 35.5 {
		t.Errorf("threshold = %d %v", code, snap.Threshold)
	}
	if code := postJSON(t, sessionURL+"/speed", `{"value": 100}`, &snap); code != http.StatusOK || snap.Speed != 16 {
		t.Errorf("speed = %d %v", code, snap.Speed)
	}

	tests := []struct {
		command string
		body    string
		want    int
	}{
		{"theme", `{"theme": "sepia"}`, http.StatusBadRequest},
		{"mode", `{"mode": "bounce"}`, http.StatusBadRequest},
		{"dance", "", http.StatusNotFound},
		{"styledata", "", http.StatusBadRequest},
		{"seek", `{"hour": `, http.StatusBadRequest},
		{"theme", `{"theme": "dark"}`, http.StatusOK},
	}
	for _, tt := range tests {
		if code := postJSON(t, sessionURL+"/"+tt.command, tt.body, nil); code != tt.want {
			t.Errorf("POST %s %s = %d, want %d", tt.command, tt.body, code, tt.want)
		}
	}

	// A catalog swap rebuilds the live session
	before := snap.Reinits
	if err := ctrl.Hub.SetRegistry(context.Background(), testRegistry(t, 3)); err != nil {
		t.Fatalf("SetRegistry: %v", err)
	}
	getJSON(t, sessionURL, &snap)
	if snap.TotalHours != 72 || snap.Reinits <= before {
		t.Errorf("after swap: total %d reinits %d (before %d)", snap.TotalHours, snap.Reinits, before)
	}

	conn.Close()
	waitFor(t, "session removal", func() bool { return len(ctrl.Hub.Sessions()) == 0 })
}

func TestWebsocketRejectsBadMessage(t *testing.T) {
	ctrl, srv := newTestServer(t)

	conn := dial(t, srv)
	defer conn.Close()
	waitFor(t, "session registration", func() bool { return len(ctrl.Hub.Sessions()) == 1 })

	if err := conn.WriteJSON(remote.ClientMessage{Type: "dance"}); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var f remote.Frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("ReadJSON: %v", err)
		}
		if f.Type == remote.FrameError {
			if !strings.Contains(f.Error, "unknown command") {
				t.Errorf("error = %q", f.Error)
			}
			return
		}
	}
}
