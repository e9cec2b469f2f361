package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	logx "localnotify/pkg/logx"
)

// maxFrameSize bounds a single newline-delimited frame.
const maxFrameSize = 1 << 20

// Frame is the on-the-wire envelope used by Stream.
type Frame struct {
	ID      string          `json:"id"`
	Plugin  string          `json:"plugin,omitempty"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Stream carries frames as JSON lines, e.g. over a child process's stdio.
// Frame IDs are for tracing only; they do not pair requests with replies.
type Stream struct {
	r   io.Reader
	log logx.Logger

	wmu sync.Mutex
	w   io.Writer

	hmu      sync.RWMutex
	handlers map[string]Handler
}

func NewStream(r io.Reader, w io.Writer, log logx.Logger) *Stream {
	return &Stream{
		r:        r,
		w:        w,
		log:      log,
		handlers: map[string]Handler{},
	}
}

func (s *Stream) Send(plugin, name string, payload []byte) error {
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	if !json.Valid(payload) {
		return fmt.Errorf("send %s: payload is not valid JSON", name)
	}
	f := Frame{ID: uuid.NewString(), Plugin: plugin, Name: name, Payload: payload}
	b, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("send %s: %w", name, err)
	}
	b = append(b, '\n')

	s.wmu.Lock()
	defer s.wmu.Unlock()
	if _, err := s.w.Write(b); err != nil {
		return fmt.Errorf("send %s: %w", name, err)
	}
	s.log.Trace("frame sent", logx.String("id", f.ID), logx.String("name", name))
	return nil
}

func (s *Stream) Handle(name string, h Handler) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	if h == nil {
		delete(s.handlers, name)
		return
	}
	s.handlers[name] = h
}

// Run reads frames until the reader is exhausted or ctx is canceled.
// Malformed lines are logged and skipped. EOF is a clean stop.
func (s *Stream) Run(ctx context.Context) error {
	sc := bufio.NewScanner(s.r)
	sc.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var f Frame
		if err := json.Unmarshal(line, &f); err != nil {
			s.log.Warn("malformed frame dropped", logx.Err(err))
			continue
		}
		s.hmu.RLock()
		h := s.handlers[f.Name]
		s.hmu.RUnlock()
		if h == nil {
			s.log.Debug("no handler for frame", logx.String("name", f.Name), logx.String("id", f.ID))
			continue
		}
		h(f.Payload)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("stream read: %w", err)
	}
	return nil
}
