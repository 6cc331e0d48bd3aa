// Package server is the simulator's viewer: it streams panel framebuffer
// snapshots and ride telemetry to WebSocket clients and feeds viewer button
// presses back into the firmware's button pad.
package server

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/darvell/open-bc280-firmware-sub002/internal/ridelog"
	"github.com/darvell/open-bc280-firmware-sub002/internal/simcfg"
)

// PanelSource provides RGB565 framebuffer snapshots in row-major order.
type PanelSource interface {
	Snapshot() []uint16
}

// ButtonSink receives the viewer's button mask.
type ButtonSink interface {
	Set(mask uint8)
}

// Server coordinates telemetry and frame broadcasting to WebSocket clients.
type Server struct {
	cfg     *simcfg.Config
	panel   PanelSource
	buttons ButtonSink
	sample  func() *ridelog.Sample
	webFS   fs.FS
	logger  *ridelog.Logger

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader

	// Odometer: persistent distance tracking on the host side. The firmware
	// trip counters reset with the battery; this survives across runs.
	odoMu    sync.Mutex
	odoTotal float64 // total km
	odoTrip  float64 // trip km (resettable)
	odoPath  string
}

type wsMsg struct {
	binary bool
	data   []byte
}

type wsClient struct {
	conn *websocket.Conn
	send chan wsMsg
}

// telemetryFrame is the JSON structure sent to all WebSocket clients.
type telemetryFrame struct {
	Type  string          `json:"type"` // "telemetry" or "config"
	Ride  *ridelog.Sample `json:"ride,omitempty"`
	Odo   *odoData        `json:"odo,omitempty"`
	Cfg   *simcfg.Config  `json:"cfg,omitempty"`
	Stamp int64           `json:"stamp"` // Unix ms
}

type odoData struct {
	Total float64 `json:"total"` // km
	Trip  float64 `json:"trip"`  // km
}

// buttonMsg is the inbound viewer message.
type buttonMsg struct {
	Type string `json:"type"`
	Mask uint8  `json:"mask"`
}

// New creates a viewer server. sample must return a fresh telemetry snapshot
// on every call; it runs on the broadcast goroutine.
func New(cfg *simcfg.Config, panel PanelSource, buttons ButtonSink, sample func() *ridelog.Sample, webFS fs.FS) *Server {
	odoPath := filepath.Join(filepath.Dir(cfg.Path()), "odometer.dat")
	if cfg.Path() == "" {
		odoPath = "/etc/bc280sim/odometer.dat"
	}

	s := &Server{
		cfg:     cfg,
		panel:   panel,
		buttons: buttons,
		sample:  sample,
		webFS:   webFS,
		logger: ridelog.New(ridelog.Config{
			Enabled:    cfg.Logging.Enabled,
			Path:       cfg.Logging.Path,
			IntervalMs: cfg.Logging.Interval,
		}),
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		odoPath: odoPath,
	}
	s.loadOdometer()
	return s
}

// Run starts the HTTP server and broadcast loops.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.Handle("/", http.FileServer(http.FS(s.webFS)))
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/odo/reset-trip", s.handleResetTrip)

	go s.broadcastLoop(ctx)

	// Persist the odometer every 30 seconds
	odoTicker := time.NewTicker(30 * time.Second)
	go func() {
		defer odoTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.saveOdometer()
				return
			case <-odoTicker.C:
				s.saveOdometer()
			}
		}
	}()

	srv := &http.Server{
		Addr:    s.cfg.Server.ListenAddr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		s.saveOdometer()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Printf("[server] listening on %s", s.cfg.Server.ListenAddr)
	return srv.ListenAndServe()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan wsMsg, 64),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	total := len(s.clients)
	s.clientsMu.Unlock()

	log.Printf("[ws] client connected (%d total)", total)

	// Initial config + odometer so the viewer can label itself
	s.odoMu.Lock()
	odo := &odoData{Total: s.odoTotal, Trip: s.odoTrip}
	s.odoMu.Unlock()
	init := telemetryFrame{
		Type:  "config",
		Cfg:   s.cfg,
		Odo:   odo,
		Stamp: time.Now().UnixMilli(),
	}
	if data, err := json.Marshal(init); err == nil {
		client.send <- wsMsg{data: data}
	}

	// Writer goroutine
	go func() {
		defer conn.Close()
		for msg := range client.send {
			typ := websocket.TextMessage
			if msg.binary {
				typ = websocket.BinaryMessage
			}
			if err := conn.WriteMessage(typ, msg.data); err != nil {
				break
			}
		}
	}()

	// Reader goroutine: viewer button events
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			remaining := len(s.clients)
			s.clientsMu.Unlock()
			close(client.send)
			log.Printf("[ws] client disconnected (%d total)", remaining)
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var msg buttonMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if msg.Type == "buttons" && s.buttons != nil {
				s.buttons.Set(msg.Mask)
			}
		}
	}()
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		data, err := s.cfg.ToJSON()
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)

	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", 400)
			return
		}
		if err := s.cfg.UpdateFromJSON(body); err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		if err := s.cfg.Save(); err != nil {
			log.Printf("[config] save failed: %v", err)
		}
		s.logger.SetEnabled(s.cfg.Logging.Enabled)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))

	default:
		http.Error(w, "method not allowed", 405)
	}
}

func (s *Server) handleResetTrip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", 405)
		return
	}
	s.odoMu.Lock()
	s.odoTrip = 0
	s.odoMu.Unlock()
	s.saveOdometer()
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// broadcastLoop samples telemetry at TelemHz and panel frames at FrameHz,
// pushing both to all clients. Telemetry rows also go to the ride log.
func (s *Server) broadcastLoop(ctx context.Context) {
	telemHz := s.cfg.Server.TelemHz
	if telemHz <= 0 {
		telemHz = 20
	}
	frameHz := s.cfg.Server.FrameHz
	if frameHz <= 0 {
		frameHz = 10
	}

	telemTicker := time.NewTicker(time.Second / time.Duration(telemHz))
	frameTicker := time.NewTicker(time.Second / time.Duration(frameHz))
	defer telemTicker.Stop()
	defer frameTicker.Stop()

	lastTelem := time.Now()

	for {
		select {
		case <-ctx.Done():
			s.logger.Close()
			return

		case now := <-telemTicker.C:
			snap := s.sample()
			if snap == nil {
				continue
			}
			s.updateOdometer(snap, now.Sub(lastTelem))
			lastTelem = now

			s.odoMu.Lock()
			odo := &odoData{
				Total: math.Round(s.odoTotal*10) / 10,
				Trip:  math.Round(s.odoTrip*10) / 10,
			}
			s.odoMu.Unlock()

			frame := telemetryFrame{
				Type:  "telemetry",
				Ride:  snap,
				Odo:   odo,
				Stamp: now.UnixMilli(),
			}
			if data, err := json.Marshal(frame); err == nil {
				s.broadcast(wsMsg{data: data})
			}
			s.logger.Record(snap)

		case <-frameTicker.C:
			if s.panel == nil {
				continue
			}
			s.broadcast(wsMsg{binary: true, data: packFrame(s.panel.Snapshot())})
		}
	}
}

// packFrame serializes an RGB565 framebuffer as little-endian bytes, the
// layout the viewer canvas decodes directly.
func packFrame(px []uint16) []byte {
	out := make([]byte, len(px)*2)
	for i, p := range px {
		binary.LittleEndian.PutUint16(out[i*2:], p)
	}
	return out
}

// updateOdometer integrates speed over the telemetry period. Speed arrives
// in tenths of a mile per hour.
func (s *Server) updateOdometer(snap *ridelog.Sample, dt time.Duration) {
	if snap.SpeedDmph == 0 || dt <= 0 || dt > time.Second {
		return
	}
	kmh := float64(snap.SpeedDmph) * 0.1609344
	dist := kmh * dt.Hours()

	s.odoMu.Lock()
	s.odoTotal += dist
	s.odoTrip += dist
	s.odoMu.Unlock()
}

// loadOdometer reads persisted odometer values from disk.
func (s *Server) loadOdometer() {
	data, err := os.ReadFile(s.odoPath)
	if err != nil {
		log.Printf("[odo] no saved data at %s (starting at 0)", s.odoPath)
		return
	}
	parts := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(parts) >= 1 {
		if v, err := strconv.ParseFloat(parts[0], 64); err == nil {
			s.odoTotal = v
		}
	}
	if len(parts) >= 2 {
		if v, err := strconv.ParseFloat(parts[1], 64); err == nil {
			s.odoTrip = v
		}
	}
	log.Printf("[odo] loaded: total=%.1f km, trip=%.1f km", s.odoTotal, s.odoTrip)
}

// saveOdometer persists odometer values to disk.
func (s *Server) saveOdometer() {
	s.odoMu.Lock()
	total := s.odoTotal
	trip := s.odoTrip
	s.odoMu.Unlock()

	os.MkdirAll(filepath.Dir(s.odoPath), 0755)

	data := fmt.Sprintf("%.6f\n%.6f\n", total, trip)
	if err := os.WriteFile(s.odoPath, []byte(data), 0644); err != nil {
		log.Printf("[odo] save failed: %v", err)
	}
}

func (s *Server) broadcast(msg wsMsg) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- msg:
		default:
			// client too slow, skip
		}
	}
}
