package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/ocupoint/sdraudio/pkg/dsp"
	"github.com/ocupoint/sdraudio/pkg/obslog"
	"github.com/ocupoint/sdraudio/pkg/registry"
	"github.com/ocupoint/sdraudio/pkg/telemetry"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 65536,
}

// wsClient is the generic single-writer websocket wrapper every
// transport endpoint uses, adapted from the teacher's Client/writePump
// pattern (server.go): one goroutine owns conn.Write*, fed by a
// buffered channel carrying either raw binary frames or JSON values.
type wsClient struct {
	conn *websocket.Conn
	send chan interface{}

	// onSent, if set, is called with the byte length of every binary
	// frame after it has actually left the socket. This is how callers
	// track outbound buffered bytes for §4.7 throttling, since
	// gorilla/websocket exposes no buffered-amount API of its own.
	onSent func(n int)
}

func (c *wsClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		switch v := msg.(type) {
		case []byte:
			err := c.conn.WriteMessage(websocket.BinaryMessage, v)
			if c.onSent != nil {
				c.onSent(len(v))
			}
			if err != nil {
				return
			}
		default:
			if err := c.conn.WriteJSON(v); err != nil {
				return
			}
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// Transport owns the websocket endpoints and wires them to the
// subscription registry, control router, and chat/events broadcasters.
type Transport struct {
	reg       *registry.Registry[*Subscription]
	state     *ServerState
	control   *ControlRouter
	metrics   *telemetry.Registry
	log       *obslog.Logger
	events    *EventsBroadcaster
	waterfall *WaterfallBroadcaster

	chatMu      sync.RWMutex
	chatClients map[*wsClient]bool
}

// NewTransport builds a Transport bound to the given shared state.
func NewTransport(reg *registry.Registry[*Subscription], state *ServerState, control *ControlRouter, metrics *telemetry.Registry, log *obslog.Logger, events *EventsBroadcaster, waterfall *WaterfallBroadcaster) *Transport {
	return &Transport{
		reg:         reg,
		state:       state,
		control:     control,
		metrics:     metrics,
		log:         log,
		events:      events,
		waterfall:   waterfall,
		chatClients: make(map[*wsClient]bool),
	}
}

// RegisterRoutes wires every transport endpoint onto mux.
func (t *Transport) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/audio", t.handleAudio)
	mux.HandleFunc("/waterfall", t.handleWaterfall)
	mux.HandleFunc("/events", t.handleEvents)
	mux.HandleFunc("/chat", t.handleChat)
}

// handleAudio upgrades the connection, creates a Subscription from the
// initial query parameters, registers it, and pumps demodulated audio
// out while reading control messages in.
func (t *Transport) handleAudio(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("audio upgrade:", err)
		return
	}

	l, _ := strconv.Atoi(r.URL.Query().Get("l"))
	rr, _ := strconv.Atoi(r.URL.Query().Get("r"))
	modeTag := r.URL.Query().Get("mode")
	if modeTag == "" {
		modeTag = "USB"
	}
	mode, stereo, ok := dsp.ParseMode(modeTag)
	if !ok {
		mode, stereo = dsp.ModeUSB, false
	}
	userID := r.URL.Query().Get("user_id")

	snap := t.state.snapshot()
	sub, err := NewSubscription(userID, l, rr, mode, stereo, snap.AudioRate, snap.AudioFFTSize, "balanced", snap.EncoderKind, snap.FlacMode)
	if err != nil {
		conn.WriteJSON(controlAck{Cmd: "window", OK: false, Error: err.Error()})
		conn.Close()
		return
	}

	key := registry.Key{L: l, R: rr}
	sub.handle = t.reg.Insert(key, sub)
	t.metrics.AudioClients.Inc()

	client := &wsClient{conn: conn, send: sub.send, onSent: func(n int) { sub.pendingBytes.Add(-int64(n)) }}
	go client.writePump()

	defer func() {
		t.reg.Erase(registry.Key{L: sub.L, R: sub.R})
		t.metrics.AudioClients.Dec()
		if t.state.snapshot().ShowOtherUsers {
			t.events.RecordDisconnect(sub.ID)
		}
		sub.close()
		t.log.Info("audio client disconnected", "subscription", sub.ID)
	}()

	t.log.Info("audio client connected", "subscription", sub.ID, "l", l, "r", rr, "mode", modeTag)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		ack := t.control.HandleMessage(sub, raw)
		select {
		case sub.send <- ack:
		default:
			t.metrics.FramesDropped.WithLabelValues("ack_backpressure").Inc()
		}
	}
}

// handleWaterfall streams decimated spectrum magnitude frames at the
// throttled cadence of §4.7; it has no per-client demodulation state,
// only a ThrottleState.
func (t *Transport) handleWaterfall(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("waterfall upgrade:", err)
		return
	}
	client := &wsClient{conn: conn, send: make(chan interface{}, 32)}
	go client.writePump()
	_, unsub := t.waterfall.Subscribe(client)
	t.metrics.WaterfallClients.Inc()
	defer func() {
		unsub()
		close(client.send)
		t.metrics.WaterfallClients.Dec()
	}()

	// Waterfall is read-only from the client's perspective beyond the
	// initial handshake; block on reads solely to detect disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// handleEvents streams the 1-second events-channel digest (§4.6) until
// the client disconnects.
func (t *Transport) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("events upgrade:", err)
		return
	}
	client := &wsClient{conn: conn, send: make(chan interface{}, 8)}
	go client.writePump()
	unsub := t.events.Subscribe(client)
	defer func() {
		unsub()
		close(client.send)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// handleChat fans chat messages out to every connected chat client,
// the sender included, grounded on the teacher's broadcastJSON pattern.
func (t *Transport) handleChat(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("chat upgrade:", err)
		return
	}
	client := &wsClient{conn: conn, send: make(chan interface{}, 32)}
	go client.writePump()

	t.chatMu.Lock()
	t.chatClients[client] = true
	t.chatMu.Unlock()

	defer func() {
		t.chatMu.Lock()
		delete(t.chatClients, client)
		t.chatMu.Unlock()
		close(client.send)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		t.broadcastChat(raw)
	}
}

func (t *Transport) broadcastChat(raw []byte) {
	var env controlEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return
	}
	t.chatMu.RLock()
	defer t.chatMu.RUnlock()
	for client := range t.chatClients {
		select {
		case client.send <- env:
		default:
		}
	}
}
