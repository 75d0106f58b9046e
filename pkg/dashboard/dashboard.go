// Package dashboard broadcasts live batch state to connected WebSocket
// clients, adapted from the teacher's pkg/router/broadcast.go
// (Broadcaster) and pkg/router/poller.go (ticker-driven push loop) —
// pushing slot/reservation state for one Execute batch instead of
// cluster routing state for a worker pool.
package dashboard

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SlotState is one slot's snapshot in a BatchState push.
type SlotState struct {
	Index   int    `json:"index"`
	TaskID  int    `json:"task_id"`
	Running bool   `json:"running"`
	Device  string `json:"device,omitempty"`
}

// BatchState is the JSON payload pushed to dashboard clients.
type BatchState struct {
	NJobs       int                `json:"n_jobs"`
	NTasks      int                `json:"n_tasks"`
	Pending     int                `json:"pending"`
	Terminated  bool               `json:"terminated"`
	Slots       []SlotState        `json:"slots"`
	ReservedRAM float64            `json:"reserved_ram_bytes"`
	ReservedGPU map[string]float64 `json:"reserved_gpu_bytes"`
}

// Broadcaster pushes BatchState to connected WebSocket clients, identical
// in shape to the teacher's Broadcaster but templated on BatchState
// instead of ClusterState.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{clients: make(map[*websocket.Conn]bool)}
}

// HandleWS is the WebSocket upgrade handler for /ws.
func (b *Broadcaster) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("dashboard: websocket upgrade failed: %v", err)
		return
	}

	b.mu.Lock()
	b.clients[conn] = true
	b.mu.Unlock()

	go func() {
		defer func() {
			b.mu.Lock()
			delete(b.clients, conn)
			b.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends state to every connected client, dropping any that error.
func (b *Broadcaster) Broadcast(state BatchState) {
	data, err := json.Marshal(state)
	if err != nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for conn := range b.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(b.clients, conn)
		}
	}
}

// ClientCount reports how many dashboard clients are currently connected.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Poller periodically calls snapshot and broadcasts its result, the same
// ticker-loop shape as the teacher's Poller.loop, generalized over a
// caller-supplied snapshot function instead of fanning out gRPC calls to
// a worker registry.
type Poller struct {
	b        *Broadcaster
	snapshot func() BatchState
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewPoller(b *Broadcaster, interval time.Duration, snapshot func() BatchState) *Poller {
	return &Poller{b: b, snapshot: snapshot, interval: interval, stopCh: make(chan struct{})}
}

func (p *Poller) Start() {
	p.wg.Add(1)
	go p.loop()
}

func (p *Poller) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

func (p *Poller) loop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			if p.b.ClientCount() == 0 {
				continue
			}
			p.b.Broadcast(p.snapshot())
		}
	}
}
