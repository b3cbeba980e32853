package websocket

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"log"

	"github.com/google/uuid"

	"github.com/see2023/meetingcore/internal/events"
	"github.com/see2023/meetingcore/internal/processor"
	"github.com/see2023/meetingcore/internal/speaker"
)

// Ingress event type discriminators, grounded on the original's socket.io
// event names (audio_stream, audio_stream_stop, switch_meeting) carried
// here as a JSON envelope's "type" field, following the teacher's own
// JSON-event-dispatch idiom (session_usecase.go's ProcessMessage) rather
// than the original's socket.io transport.
const (
	typeAudioStream     = "audio_stream"
	typeAudioStreamStop = "audio_stream_stop"
	typeSwitchMeeting   = "switch_meeting"
)

type ingressEnvelope struct {
	Type      string  `json:"type"`
	Audio     string  `json:"audio,omitempty"`      // base64 int16 little-endian PCM
	Timestamp float64 `json:"timestamp,omitempty"`  // seconds
	MeetingID int64   `json:"meeting_id,omitempty"`
}

// Session drives one WebSocket connection against a shared AudioProcessor:
// a reader goroutine decodes ingress frames and feeds them to Processor,
// a writer goroutine drains the EventChannel to the socket. Grounded on
// session_usecase.go's HandleNewConnection read loop, generalized to also
// own an output-draining goroutine since EventChannel is polled rather
// than callback-driven.
type Session struct {
	id       string
	conn     *SafeConn
	proc     *processor.Processor
	out      *events.Channel
	speakers *speaker.Engine
}

// NewSession wires a connection to the shared processor/engine/output
// channel. proc and speakers are shared across connections in this
// single-room deployment (one meeting at a time); switch_meeting changes
// which meeting's speaker registry is active. Each connection gets a
// short uuid-derived id for log correlation, matching the teacher's own
// session_manager.go session-id generation.
func NewSession(conn *SafeConn, proc *processor.Processor, speakers *speaker.Engine, out *events.Channel) *Session {
	id := uuid.New().String()[:12]
	log.Printf("[INFO] websocket session %s: connected", id)
	return &Session{id: id, conn: conn, proc: proc, speakers: speakers, out: out}
}

// Run blocks until the connection closes or ctx is cancelled, running the
// reader loop on the calling goroutine and the writer loop on a spawned
// one.
func (s *Session) Run(ctx context.Context) {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.drainEvents(ctx)
	}()

	s.readLoop(ctx)
	<-writerDone
	log.Printf("[INFO] websocket session %s: disconnected", s.id)
}

func (s *Session) readLoop(ctx context.Context) {
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var env ingressEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Printf("[WARN] websocket session %s: invalid ingress frame: %v", s.id, err)
			continue
		}

		switch env.Type {
		case typeAudioStream:
			s.handleAudioStream(ctx, env)
		case typeAudioStreamStop:
			log.Printf("[INFO] websocket session %s: audio stream stopped", s.id)
			s.proc.ForceProcessPending(ctx)
		case typeSwitchMeeting:
			if err := s.speakers.SwitchMeeting(env.MeetingID); err != nil {
				log.Printf("[ERROR] websocket session %s: switch_meeting(%d): %v", s.id, env.MeetingID, err)
				s.out.Put(events.ErrorEvent{Code: 1002, Message: "failed to switch meeting"})
			}
		default:
			log.Printf("[WARN] websocket session %s: unknown ingress type %q", s.id, env.Type)
		}
	}
}

func (s *Session) handleAudioStream(ctx context.Context, env ingressEnvelope) {
	raw, err := base64.StdEncoding.DecodeString(env.Audio)
	if err != nil {
		log.Printf("[WARN] websocket session %s: invalid base64 audio: %v", s.id, err)
		s.out.Put(events.ErrorEvent{Code: 1001, Message: "invalid audio encoding"})
		return
	}
	if len(raw)%2 != 0 {
		raw = raw[:len(raw)-1]
	}
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}

	if err := s.proc.ProcessAudio(ctx, samples, env.Timestamp); err != nil {
		log.Printf("[ERROR] websocket session %s: process audio: %v", s.id, err)
		s.out.Put(events.ErrorEvent{Code: 1001, Message: "audio processing error"})
	}
}

// drainEvents writes every event pushed to the shared EventChannel to this
// connection's socket until ctx is cancelled. In a single-connection
// deployment this is exactly right; a multi-subscriber fanout would need
// per-session queues, which this package does not have.
func (s *Session) drainEvents(ctx context.Context) {
	for {
		ev, ok := s.out.Wait(ctx)
		if !ok {
			return
		}
		body, err := events.Marshal(ev)
		if err != nil {
			log.Printf("[ERROR] websocket session %s: marshal event: %v", s.id, err)
			continue
		}
		if err := s.conn.WriteMessage(body); err != nil {
			return
		}
	}
}
