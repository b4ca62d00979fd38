// relaysim is a development stand-in for the cloud relay. It accepts one
// bridge connection, pings it with listener status, forwards stdin lines as
// requests, and prints responses and events. Useful for exercising hubcast
// without any cloud account.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hubcast/hubcast/proto"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local development tool
	},
}

type relaySim struct {
	token     string
	listening bool

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]string // request id -> action
}

func main() {
	addr := flag.String("addr", "127.0.0.1:9000", "listen address")
	token := flag.String("token", "dev-token", "bearer token the bridge must present")
	listening := flag.Bool("listening", true, "report web clients as listening in pings")
	flag.Parse()

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(handler))

	sim := &relaySim{token: *token, listening: *listening, pending: make(map[string]string)}

	mux := http.NewServeMux()
	mux.HandleFunc("/", sim.handleWebSocket)

	go sim.stdinLoop()
	go sim.pingLoop()

	slog.Info("Relay simulator listening", "addr", *addr, "token", *token)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		slog.Error("Server failed", "error", err.Error())
		os.Exit(1)
	}
}

func (s *relaySim) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		token = r.URL.Query().Get("token")
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection", "error", err)
		return
	}

	if token != s.token || deviceID == "" {
		slog.Warn("Rejecting connection", "remote_addr", r.RemoteAddr, "device_id", deviceID)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(4001, "invalid token"))
		conn.Close()
		return
	}

	s.mu.Lock()
	if s.conn != nil {
		// One bridge at a time; the newcomer wins.
		s.conn.Close()
	}
	s.conn = conn
	s.mu.Unlock()

	slog.Info("Bridge connected", "device_id", deviceID, "addr", r.RemoteAddr)
	s.readLoop(conn, deviceID)
}

func (s *relaySim) readLoop(conn *websocket.Conn, deviceID string) {
	defer func() {
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
		conn.Close()
		slog.Info("Bridge disconnected", "device_id", deviceID)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("Connection error", "error", err)
			}
			return
		}

		msg, err := proto.Decode(data)
		if err != nil {
			slog.Warn("Invalid message from bridge", "error", err, "data", string(data))
			continue
		}

		switch msg.Type {
		case proto.TypeResponse:
			s.mu.Lock()
			action := s.pending[msg.ID]
			delete(s.pending, msg.ID)
			s.mu.Unlock()
			if msg.Error != nil {
				fmt.Printf("<< %s [%s] error %s: %s\n", action, msg.ID, msg.Error.Code, msg.Error.Message)
				continue
			}
			fmt.Printf("<< %s [%s] %s\n", action, msg.ID, compactJSON(msg.Payload))

		case proto.TypeEvent:
			fmt.Printf("** event %s %s\n", msg.Action, compactJSON(msg.Payload))

		case proto.TypePong:
			slog.Debug("Received pong")

		case proto.TypePing:
			s.send(proto.Pong())

		default:
			slog.Warn("Unhandled message", "type", msg.Type)
		}
	}
}

// stdinLoop turns lines like "homes.list" or
// "rooms.list {\"homeId\":\"h1\"}" into correlated requests.
func (s *relaySim) stdinLoop() {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		action, rest, _ := strings.Cut(line, " ")
		payload := proto.Payload{}
		if rest != "" {
			if err := json.Unmarshal([]byte(rest), &payload); err != nil {
				fmt.Printf("bad payload: %s\n", err)
				continue
			}
		}

		id := uuid.NewString()
		s.mu.Lock()
		s.pending[id] = action
		s.mu.Unlock()

		if err := s.send(proto.Message{ID: id, Type: proto.TypeRequest, Action: action, Payload: payload}); err != nil {
			fmt.Printf("send failed: %s\n", err)
		}
	}
}

// pingLoop mirrors the production relay: a ping every 30s carrying whether
// any web client is currently listening.
func (s *relaySim) pingLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		s.send(proto.Message{Type: proto.TypePing, Payload: proto.Payload{"webClientsListening": s.listening}})
	}
}

func (s *relaySim) send(msg proto.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("no bridge connected")
	}
	data, err := proto.Encode(msg)
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func compactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
