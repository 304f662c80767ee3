package ws

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/star/wwtengine/internal/control"
	"github.com/star/wwtengine/internal/stream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type testEnv struct {
	host   *control.Host
	broker *stream.Broker
	conn   *websocket.Conn
}

func newTestEnv(t *testing.T, initialize bool) *testEnv {
	t.Helper()
	broker := stream.NewBroker(32)
	host := control.NewHost(control.WithLogger(testLogger()), control.WithInitHook(broker.Hook()))
	t.Cleanup(host.Close)
	if initialize {
		if _, err := host.InitControl2("canvas", false); err != nil {
			t.Fatal(err)
		}
	}

	meta := func() stream.Metadata { return stream.Metadata{SurfaceID: "canvas"} }
	srv := httptest.NewServer(NewServer(host, broker, meta, Config{}, testLogger()).Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testEnv{host: host, broker: broker, conn: conn}
}

func (e *testEnv) read(t *testing.T) map[string]any {
	t.Helper()
	_ = e.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := e.conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(msg, &out); err != nil {
		t.Fatalf("bad server message %s: %v", msg, err)
	}
	return out
}

// readUntil reads messages until one has the given type.
func (e *testEnv) readUntil(t *testing.T, typ string) map[string]any {
	t.Helper()
	for i := 0; i < 10; i++ {
		if m := e.read(t); m["type"] == typ {
			return m
		}
	}
	t.Fatalf("no %s message", typ)
	return nil
}

func (e *testEnv) send(t *testing.T, msg string) {
	t.Helper()
	if err := e.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestHelloFirst(t *testing.T) {
	e := newTestEnv(t, true)
	m := e.read(t)
	if m["type"] != TypeHello {
		t.Fatalf("first message = %v, want HELLO", m)
	}
	meta, _ := m["metadata"].(map[string]any)
	if meta["type"] != "metadata" || meta["surface_id"] != "canvas" {
		t.Errorf("metadata = %v", meta)
	}
}

func TestGotoPushesArrived(t *testing.T) {
	e := newTestEnv(t, true)
	e.readUntil(t, TypeHello)

	e.send(t, `{"type":"GOTO","id":"g1","ra":5.5,"dec":-20,"zoom":10,"instant":true}`)

	var ack, event map[string]any
	for ack == nil || event == nil {
		m := e.read(t)
		switch m["type"] {
		case TypeAck:
			ack = m
		case TypeEvent:
			if ev := m["event"].(map[string]any); ev["type"] == stream.KindArrived {
				event = ev
			}
		case TypeError:
			t.Fatalf("unexpected error: %v", m)
		}
	}
	if ack["id"] != "g1" || ack["command"] != TypeGoto {
		t.Errorf("ack = %v", ack)
	}
	if event["ra"].(float64) != 5.5 || event["dec"].(float64) != -20 {
		t.Errorf("arrived = %v", event)
	}
	if ra := e.host.Singleton().ViewRA(); ra != 5.5 {
		t.Errorf("view RA = %v", ra)
	}
}

func TestSetRateAndSync(t *testing.T) {
	e := newTestEnv(t, true)
	e.readUntil(t, TypeHello)

	e.send(t, `{"type":"SET_RATE","id":"r","rate":-10}`)
	ack := e.readUntil(t, TypeAck)
	clock := ack["clock"].(map[string]any)
	if clock["time_rate"].(float64) != -10 {
		t.Errorf("clock = %v", clock)
	}
	if got := e.host.SpaceTime().TimeRate(); got != -10 {
		t.Errorf("TimeRate = %v", got)
	}

	e.send(t, `{"type":"SYNC_TIME"}`)
	ack = e.readUntil(t, TypeAck)
	if ack["clock"].(map[string]any)["sync_to_clock"] != true {
		t.Errorf("sync ack = %v", ack)
	}
}

func TestInvalidCommands(t *testing.T) {
	e := newTestEnv(t, true)
	e.readUntil(t, TypeHello)

	tests := []string{
		`not json`,
		`{"type":"FLY"}`,
		`{"type":"GOTO","ra":1}`,
		`{"type":"GOTO","ra":1,"dec":95,"zoom":10}`,
		`{"type":"SET_RATE","rate":0}`,
		`{"type":"SET_RATE"}`,
	}
	for _, msg := range tests {
		e.send(t, msg)
		m := e.readUntil(t, TypeError)
		if m["error"] == "" {
			t.Errorf("%s: empty error", msg)
		}
	}
	if got := e.host.SpaceTime().TimeRate(); got != 1 {
		t.Errorf("rate changed by invalid commands: %v", got)
	}
}

func TestCommandBeforeInit(t *testing.T) {
	e := newTestEnv(t, false)
	e.readUntil(t, TypeHello)

	e.send(t, `{"type":"RENDER","id":"x"}`)
	m := e.readUntil(t, TypeError)
	if !strings.Contains(m["error"].(string), "not initialized") {
		t.Errorf("error = %v", m["error"])
	}
}

func TestDecodeCommand(t *testing.T) {
	cmd, err := DecodeCommand([]byte(`{"type":"GOTO","ra":23.5,"dec":0,"zoom":60,"instant":true}`))
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Type != TypeGoto || cmd.RA != 23.5 || !cmd.Instant {
		t.Errorf("cmd = %+v", cmd)
	}
	if _, err := DecodeCommand([]byte(`{"id":"no type"}`)); err == nil {
		t.Error("expected error for missing type")
	}
}
