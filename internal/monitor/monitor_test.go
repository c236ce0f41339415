package monitor

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type staticSource struct {
	snap Snapshot
}

func (s staticSource) Snapshot() Snapshot { return s.snap }

func testServer() *Server {
	source := staticSource{snap: Snapshot{
		Role:            "follower",
		State:           "synced",
		Sequence:        42,
		Accepted:        100,
		Duplicates:      7,
		LeaderAvailable: true,
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(source, 10*time.Millisecond, logger)
}

func TestStatusEndpoint(t *testing.T) {
	ts := httptest.NewServer(testServer().Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.Role != "follower" || snap.Sequence != 42 || snap.Accepted != 100 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestWebsocketStream(t *testing.T) {
	ts := httptest.NewServer(testServer().Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// The stream pushes a snapshot immediately, then on every interval.
	for i := 0; i < 2; i++ {
		var snap Snapshot
		if err := conn.ReadJSON(&snap); err != nil {
			t.Fatal(err)
		}
		if snap.State != "synced" || snap.Duplicates != 7 {
			t.Errorf("snapshot %d = %+v", i, snap)
		}
	}
}
