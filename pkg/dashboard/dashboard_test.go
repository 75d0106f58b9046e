package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestBroadcastDeliversStateToConnectedClient(t *testing.T) {
	b := NewBroadcaster()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", b.HandleWS)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// give HandleWS's goroutine a moment to register the client.
	deadline := time.Now().Add(time.Second)
	for b.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if b.ClientCount() != 1 {
		t.Fatalf("ClientCount = %d, want 1", b.ClientCount())
	}

	want := BatchState{NJobs: 2, NTasks: 4, Pending: 1, Terminated: false}
	b.Broadcast(want)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var got BatchState
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.NJobs != want.NJobs || got.NTasks != want.NTasks || got.Pending != want.Pending {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestPollerSkipsSnapshotWithNoClients(t *testing.T) {
	b := NewBroadcaster()
	called := false
	p := NewPoller(b, 10*time.Millisecond, func() BatchState {
		called = true
		return BatchState{}
	})
	p.Start()
	time.Sleep(50 * time.Millisecond)
	p.Stop()

	if called {
		t.Fatalf("snapshot should not be called while no dashboard clients are connected")
	}
}
