package websocket

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/see2023/meetingcore/internal/config"
	"github.com/see2023/meetingcore/internal/events"
	"github.com/see2023/meetingcore/internal/middleware"
	"github.com/see2023/meetingcore/internal/processor"
	"github.com/see2023/meetingcore/internal/speaker"
	"github.com/gorilla/websocket"
)

// Handler accepts WebSocket connections and drives each against the
// shared AudioProcessor/SpeakerEngine/EventChannel, mirroring the
// original's single audio_processor instance shared by every socket.io
// connection (one active meeting at a time; switch_meeting swaps the
// speaker registry, not the transport). Grounded on the teacher's
// handler.go for the handshake/origin/API-key/rate-limit checks, which
// carry over unchanged.
type Handler struct {
	Processor   *processor.Processor
	Speakers    *speaker.Engine
	Events      *events.Channel
	Config      *config.Config
	RateLimiter *middleware.RateLimiter
	upgrader    websocket.Upgrader
}

// NewHandler creates a new WebSocket handler wired to a shared processor.
func NewHandler(proc *processor.Processor, speakers *speaker.Engine, out *events.Channel, cfg *config.Config) *Handler {
	h := &Handler{
		Processor:   proc,
		Speakers:    speakers,
		Events:      out,
		Config:      cfg,
		RateLimiter: middleware.NewRateLimiter(&cfg.Rate),
	}

	h.upgrader = websocket.Upgrader{
		CheckOrigin:     h.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	return h
}

// checkOrigin validates the request origin against allowed origins
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	// If no origin header, allow (same-origin request)
	if origin == "" {
		return true
	}

	return h.Config.IsOriginAllowed(origin)
}

// ServeHTTP implements http.Handler interface
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientIP := middleware.GetClientIP(r)

	// Check rate limit for connection attempts
	if !h.RateLimiter.Allow(clientIP) {
		log.Printf("Rate limit exceeded for IP: %s", clientIP)
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	// Check connection limit per IP
	if !h.RateLimiter.AddConnection(clientIP) {
		log.Printf("Connection limit exceeded for IP: %s", clientIP)
		http.Error(w, "Too many connections", http.StatusTooManyRequests)
		return
	}

	// Validate API key
	if !h.validateAPIKey(r) {
		h.RateLimiter.RemoveConnection(clientIP)
		log.Printf("Invalid API key from IP: %s", clientIP)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	// Upgrade connection
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.RateLimiter.RemoveConnection(clientIP)
		log.Println("Upgrade error:", err)
		return
	}

	// Wrap connection with thread-safe writer
	safeConn := NewSafeConn(conn)

	// Handle connection in goroutine and track cleanup
	go func() {
		defer h.RateLimiter.RemoveConnection(clientIP)
		defer safeConn.Close()
		sess := NewSession(safeConn, h.Processor, h.Speakers, h.Events)
		sess.Run(context.Background())
	}()
}

// validateAPIKey checks if the request has a valid API key
func (h *Handler) validateAPIKey(r *http.Request) bool {
	// Check Authorization header (Bearer token)
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		// Support "Bearer <key>" format
		if strings.HasPrefix(authHeader, "Bearer ") {
			apiKey := strings.TrimPrefix(authHeader, "Bearer ")
			return h.Config.IsAPIKeyValid(apiKey)
		}
		// Also support raw key in Authorization header
		return h.Config.IsAPIKeyValid(authHeader)
	}

	// Check OpenAI-style header
	apiKey := r.Header.Get("OpenAI-Api-Key")
	if apiKey != "" {
		return h.Config.IsAPIKeyValid(apiKey)
	}

	// Check query parameter (for WebSocket clients that can't set headers)
	apiKey = r.URL.Query().Get("api_key")
	if apiKey != "" {
		return h.Config.IsAPIKeyValid(apiKey)
	}

	// If no API keys configured, allow without auth
	return h.Config.IsAPIKeyValid("")
}

// Close cleans up handler resources
func (h *Handler) Close() {
	h.RateLimiter.Close()
}

// SafeConn wraps a WebSocket connection with thread-safe write operations
type SafeConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewSafeConn creates a new thread-safe WebSocket connection wrapper
func NewSafeConn(conn *websocket.Conn) *SafeConn {
	return &SafeConn{conn: conn}
}

// WriteJSON writes JSON data in a thread-safe manner
func (sc *SafeConn) WriteJSON(v interface{}) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	return sc.conn.WriteJSON(v)
}

// ReadMessage reads a message from the connection
func (sc *SafeConn) ReadMessage() (messageType int, p []byte, err error) {
	return sc.conn.ReadMessage()
}

// WriteMessage writes a raw text frame in a thread-safe manner, used by
// the events package's JSON-with-type-discriminator wire format.
func (sc *SafeConn) WriteMessage(data []byte) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	return sc.conn.WriteMessage(websocket.TextMessage, data)
}

// Close closes the underlying connection
func (sc *SafeConn) Close() error {
	return sc.conn.Close()
}

// Conn returns the underlying websocket connection (use with caution)
func (sc *SafeConn) Conn() *websocket.Conn {
	return sc.conn
}
