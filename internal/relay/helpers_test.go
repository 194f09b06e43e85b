package relay

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
)

var errGone = errors.New("gone")

// recordingSender keeps every frame delivered per connection.
type recordingSender struct {
	mu     sync.Mutex
	frames map[string][]Envelope
	gone   map[string]bool
}

func newRecordingSender() *recordingSender {
	return &recordingSender{
		frames: make(map[string][]Envelope),
		gone:   make(map[string]bool),
	}
}

func (s *recordingSender) Deliver(id string, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gone[id] {
		return errGone
	}
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return err
	}
	s.frames[id] = append(s.frames[id], env)
	return nil
}

func (s *recordingSender) markGone(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gone[id] = true
}

func (s *recordingSender) statuses(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for _, env := range s.frames[id] {
		if env.Event != EventStatus {
			continue
		}
		var n StatusNotice
		_ = json.Unmarshal(env.Data, &n)
		out = append(out, n.Msg)
	}
	return out
}

func (s *recordingSender) events(id string) []Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Envelope(nil), s.frames[id]...)
}

func (s *recordingSender) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = make(map[string][]Envelope)
}

func newTestCoordinator() (*Coordinator, *recordingSender) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sender := newRecordingSender()
	rooms := NewRoomIndex()
	router := NewRouter(rooms, sender, logger, nil)
	return NewCoordinator(NewRegistry(), rooms, router, logger, nil), sender
}
