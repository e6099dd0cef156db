package relay

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const EventNewMessage = "new-message"

var errIdleTimeout = errors.New("no event received within idle timeout")

type sseEvent struct {
	id        string
	event     string
	data      string
	heartbeat bool
}

// sseStream decodes one text/event-stream response body on its own goroutine.
type sseStream struct {
	body   io.ReadCloser
	cancel context.CancelFunc
	events chan sseEvent
	errs   chan error
	done   chan struct{}
	once   sync.Once
}

func newSSEStream(body io.ReadCloser, cancel context.CancelFunc) *sseStream {
	s := &sseStream{
		body:   body,
		cancel: cancel,
		events: make(chan sseEvent),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	go s.read()
	return s
}

func (s *sseStream) read() {
	reader := bufio.NewReader(s.body)
	var (
		ev      sseEvent
		hasData bool
		data    strings.Builder
	)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			s.fail(err)
			return
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if !hasData && ev.id == "" {
				continue
			}
			ev.data = data.String()
			if !s.emit(ev) {
				return
			}
			ev = sseEvent{}
			hasData = false
			data.Reset()
		case strings.HasPrefix(line, ":"):
			if !s.emit(sseEvent{heartbeat: true}) {
				return
			}
		default:
			field, value := line, ""
			if i := strings.IndexByte(line, ':'); i >= 0 {
				field, value = line[:i], strings.TrimPrefix(line[i+1:], " ")
			}
			switch field {
			case "id":
				ev.id = value
			case "event":
				ev.event = value
			case "data":
				if hasData {
					data.WriteByte('\n')
				}
				data.WriteString(value)
				hasData = true
			}
		}
	}
}

func (s *sseStream) emit(ev sseEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *sseStream) fail(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

// next waits for the next event. Heartbeats only reset the idle timer.
func (s *sseStream) next(ctx context.Context, idle time.Duration) (sseEvent, error) {
	timer := time.NewTimer(idle)
	defer timer.Stop()

	for {
		select {
		case ev := <-s.events:
			if !ev.heartbeat {
				return ev, nil
			}
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(idle)
		case err := <-s.errs:
			return sseEvent{}, err
		case <-ctx.Done():
			return sseEvent{}, ctx.Err()
		case <-timer.C:
			return sseEvent{}, errIdleTimeout
		}
	}
}

func (s *sseStream) close() {
	s.once.Do(func() {
		close(s.done)
		s.cancel()
		_ = s.body.Close()
	})
}
