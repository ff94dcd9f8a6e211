package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/benchyard/internal/agent"
	"github.com/zulandar/benchyard/internal/clock"
	"github.com/zulandar/benchyard/internal/console"
	"github.com/zulandar/benchyard/internal/db"
	"github.com/zulandar/benchyard/internal/lock"
	"github.com/zulandar/benchyard/internal/media"
	"github.com/zulandar/benchyard/internal/models"
	"github.com/zulandar/benchyard/internal/power"
	"github.com/zulandar/benchyard/internal/usb"
	"gorm.io/gorm"
)

type testServer struct {
	router http.Handler
	agent  *agent.Agent
	power  *power.Mock
	mux    *media.Mock
	ch     *console.MockChannel
	db     *gorm.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gormDB, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	ts := &testServer{power: power.NewMock(), mux: media.NewMock(), ch: console.NewMockChannel(), db: gormDB}
	ts.agent = &agent.Agent{
		Board:   "bench-01",
		Power:   ts.power,
		Mux:     ts.mux,
		USB:     usb.NewHub(usb.Port{Class: "storage", Switch: usb.NewMock()}),
		Console: ts.ch,
		Locker:  lock.New(lock.Opts{DB: gormDB, Board: "bench-01", Clock: clock.Fake(time.Now())}),
		DB:      gormDB,
		Log:     zerolog.Nop(),
	}
	ts.router = NewRouter(ts.agent, gormDB, zerolog.Nop())
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, session string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.Header.Set(SessionHeader, session)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	out := map[string]any{}
	json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestStart_NilAgent(t *testing.T) {
	err := Start(context.Background(), StartOpts{})
	if err == nil || !strings.Contains(err.Error(), "agent is required") {
		t.Errorf("err = %v", err)
	}
}

func TestSession_GeneratedWhenMissing(t *testing.T) {
	ts := newTestServer(t)
	w, _ := ts.do(t, "GET", "/api/target", "", nil)
	if got := w.Header().Get(SessionHeader); len(got) != 36 {
		t.Errorf("generated session = %q, want a uuid", got)
	}
	w, _ = ts.do(t, "GET", "/api/target", "alice", nil)
	if got := w.Header().Get(SessionHeader); got != "alice" {
		t.Errorf("session = %q, want alice", got)
	}
}

func TestTarget_PowerAndLock(t *testing.T) {
	ts := newTestServer(t)

	w, body := ts.do(t, "POST", "/api/target/lock", "alice", nil)
	if w.Code != http.StatusOK || body["owner"] != "alice" {
		t.Fatalf("lock = %d %v", w.Code, body)
	}

	w, body = ts.do(t, "POST", "/api/target/on", "bob", nil)
	if w.Code != http.StatusConflict || body["status"] != "LOCKED" {
		t.Errorf("bob on = %d %v", w.Code, body)
	}
	if ts.power.Count("on") != 0 {
		t.Error("power switched for a locked-out session")
	}
	w, body = ts.do(t, "POST", "/api/target/lock", "bob", nil)
	if w.Code != http.StatusConflict || body["owner"] != "alice" {
		t.Errorf("bob lock = %d %v", w.Code, body)
	}

	w, body = ts.do(t, "POST", "/api/target/on", "alice", nil)
	if w.Code != http.StatusOK || body["status"] != "ON" {
		t.Errorf("alice on = %d %v", w.Code, body)
	}
	_, body = ts.do(t, "GET", "/api/target", "bob", nil)
	if body["status"] != "LOCKED" || body["owner"] != "alice" {
		t.Errorf("bob status = %v", body)
	}

	w, body = ts.do(t, "POST", "/api/target/unlock", "alice", nil)
	if w.Code != http.StatusOK || body["released"] != true {
		t.Errorf("unlock = %d %v", w.Code, body)
	}
	w, body = ts.do(t, "POST", "/api/target/toggle", "bob", nil)
	if w.Code != http.StatusOK || body["status"] != "OFF" {
		t.Errorf("bob toggle = %d %v", w.Code, body)
	}
}

func TestTarget_PowerFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.power.FailOn(true)
	w, body := ts.do(t, "POST", "/api/target/on", "alice", nil)
	if w.Code != http.StatusBadGateway || body["ok"] != false {
		t.Errorf("on = %d %v", w.Code, body)
	}
}

func TestTarget_LockBadTimeout(t *testing.T) {
	ts := newTestServer(t)
	w, _ := ts.do(t, "POST", "/api/target/lock?timeout=soon", "alice", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400", w.Code)
	}
}

func TestStorage(t *testing.T) {
	ts := newTestServer(t)
	ts.power.Set(power.On)
	w, body := ts.do(t, "POST", "/api/storage/target", "alice", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("move while on = %d %v", w.Code, body)
	}

	ts.power.Set(power.Off)
	w, body = ts.do(t, "POST", "/api/storage/target", "alice", nil)
	if w.Code != http.StatusOK || body["location"] != "TARGET" {
		t.Errorf("to target = %d %v", w.Code, body)
	}
	_, body = ts.do(t, "POST", "/api/storage/swap", "alice", nil)
	if body["location"] != "HOST" {
		t.Errorf("swap = %v", body)
	}
	_, body = ts.do(t, "GET", "/api/storage", "alice", nil)
	if body["location"] != "HOST" || body["locked"] != false {
		t.Errorf("status = %v", body)
	}
}

func TestStorage_Write(t *testing.T) {
	ts := newTestServer(t)
	img := filepath.Join(t.TempDir(), "core.wic")
	os.WriteFile(img, []byte("image"), 0644)
	ts.agent.Builds = map[string]string{"core": img}

	w, _ := ts.do(t, "POST", "/api/storage/write", "alice", map[string]string{"build": "nope"})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown build = %d", w.Code)
	}
	w, _ = ts.do(t, "POST", "/api/storage/write", "alice", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty request = %d", w.Code)
	}

	w, body := ts.do(t, "POST", "/api/storage/write", "alice", map[string]string{"build": "core"})
	if w.Code != http.StatusAccepted || body["image"] != img {
		t.Fatalf("write = %d %v", w.Code, body)
	}
	deadline := time.Now().Add(5 * time.Second)
	for string(ts.mux.Written()) != "image" {
		if time.Now().After(deadline) {
			t.Fatal("image never written")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestUSB(t *testing.T) {
	ts := newTestServer(t)
	_, body := ts.do(t, "GET", "/api/usb", "alice", nil)
	ports, _ := body["ports"].([]any)
	if len(ports) != 1 {
		t.Fatalf("ports = %v", body)
	}
	if p := ports[0].(map[string]any); p["port"] != float64(1) || p["class"] != "storage" || p["status"] != "ON" {
		t.Errorf("port = %v", p)
	}

	w, body := ts.do(t, "POST", "/api/usb/1/off", "alice", nil)
	if w.Code != http.StatusOK || body["status"] != "OFF" {
		t.Errorf("off = %d %v", w.Code, body)
	}
	w, _ = ts.do(t, "POST", "/api/usb/2/on", "alice", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing port = %d", w.Code)
	}
	w, _ = ts.do(t, "POST", "/api/usb/x/on", "alice", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad port = %d", w.Code)
	}
}

func TestConsole(t *testing.T) {
	ts := newTestServer(t)
	ts.ch.QueueTail("root@bench:~# ")
	ts.ch.SetRun("uname -r", "uname -r\n6.1.0\nroot@bench:~# ")

	_, body := ts.do(t, "GET", "/api/console/tail", "alice", nil)
	if body["line"] != "root@bench:~# " {
		t.Errorf("tail = %v", body)
	}
	_, body = ts.do(t, "GET", "/api/console/tail", "alice", nil)
	if v, ok := body["line"]; !ok || v != nil {
		t.Errorf("empty tail = %v", body)
	}

	w, body := ts.do(t, "POST", "/api/console/run", "alice", map[string]string{"command": "uname -r"})
	if w.Code != http.StatusOK {
		t.Fatalf("run = %d %v", w.Code, body)
	}
	if out, _ := body["output"].([]any); len(out) != 1 || out[0] != "6.1.0" {
		t.Errorf("output = %v", body["output"])
	}

	w, _ = ts.do(t, "POST", "/api/console/send", "alice", map[string]string{"text": "ls\n"})
	if w.Code != http.StatusOK || ts.ch.Count("send ls") != 1 {
		t.Errorf("send = %d, calls %v", w.Code, ts.ch.Calls())
	}
	w, _ = ts.do(t, "POST", "/api/console/send", "alice", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("send without text = %d", w.Code)
	}

	ts.agent.Console = nil
	w, _ = ts.do(t, "POST", "/api/console/run", "alice", map[string]string{"command": "ls"})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("run without console = %d", w.Code)
	}
}

func TestHistory(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, "POST", "/api/target/on", "alice", nil)
	ts.do(t, "POST", "/api/target/off", "alice", nil)
	ts.db.Create(&models.ProbeResult{Board: "bench-01", Component: "power", OK: true, Detail: "OFF"})

	_, body := ts.do(t, "GET", "/api/history/power?limit=1", "alice", nil)
	events, _ := body["events"].([]any)
	if len(events) != 1 || events[0].(map[string]any)["Action"] != "off" {
		t.Errorf("events = %v", body)
	}
	_, body = ts.do(t, "GET", "/api/history/scenarios", "alice", nil)
	if runs, ok := body["runs"].([]any); !ok || len(runs) != 0 {
		t.Errorf("runs = %v", body)
	}
	_, body = ts.do(t, "GET", "/api/probes", "alice", nil)
	if probes, _ := body["probes"].([]any); len(probes) != 1 {
		t.Errorf("probes = %v", body)
	}

	noDB := NewRouter(ts.agent, nil, zerolog.Nop())
	w := httptest.NewRecorder()
	noDB.ServeHTTP(w, httptest.NewRequest("GET", "/api/history/power", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("history without db = %d", w.Code)
	}
}

func TestSSE_NoDB(t *testing.T) {
	ts := newTestServer(t)
	router := NewRouter(ts.agent, nil, zerolog.Nop())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/events", nil))
	if got := w.Body.String(); !strings.Contains(got, "event: connected") || !strings.Contains(got, "bench-01") {
		t.Errorf("body = %q", got)
	}
}

func TestSSE_StreamsPowerEvents(t *testing.T) {
	ts := newTestServer(t)
	old := sseInterval
	sseInterval = 10 * time.Millisecond
	defer func() { sseInterval = old }()

	srv := httptest.NewServer(ts.router)
	defer srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()

	ts.agent.TargetOn(context.Background(), "alice")

	buf := make([]byte, 4096)
	var got strings.Builder
	for !strings.Contains(got.String(), "event: power") {
		n, err := resp.Body.Read(buf)
		got.Write(buf[:n])
		if err != nil {
			t.Fatalf("stream ended: %v (read %q)", err, got.String())
		}
	}
}
