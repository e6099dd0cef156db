package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/mpcerrors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultIdleTimeout      = 30 * time.Second
	DefaultMaxReconnects    = 5
	DefaultReconnectBackoff = 500 * time.Millisecond
	DefaultRequestTimeout   = 10 * time.Second
)

// Options configures a Client. The HTTP client must not set a Timeout because
// subscriptions are long lived; per-request deadlines come from RequestTimeout.
type Options struct {
	BaseURL          string
	HTTPClient       *http.Client
	IdleTimeout      time.Duration
	MaxReconnects    int
	ReconnectBackoff time.Duration
	RequestTimeout   time.Duration
}

// Client talks to one coordination server.
type Client struct {
	base *url.URL
	http *http.Client
	opts Options
}

type issueIndexRequest struct {
	PartyIndex uint16 `json:"party_index,omitempty"`
}

type issueIndexResponse struct {
	UniqueIdx uint16 `json:"unique_idx"`
}

func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid relay url %q", opts.BaseURL)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, errors.Errorf("relay url must be http or https, got %q", opts.BaseURL)
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.MaxReconnects <= 0 {
		opts.MaxReconnects = DefaultMaxReconnects
	}
	if opts.ReconnectBackoff <= 0 {
		opts.ReconnectBackoff = DefaultReconnectBackoff
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}

	return &Client{base: base, http: opts.HTTPClient, opts: opts}, nil
}

func (c *Client) endpoint(room string, action string) string {
	u := *c.base
	u.Path = fmt.Sprintf("%s/rooms/%s/%s", trimSlash(c.base.Path), url.PathEscape(room), action)
	return u.String()
}

func trimSlash(p string) string {
	for len(p) > 0 && p[len(p)-1] == '/' {
		p = p[:len(p)-1]
	}
	return p
}

// Join obtains a party index in room. With requested == 0 the relay picks the lowest free index,
// otherwise it reserves requested or refuses.
func (c *Client) Join(ctx context.Context, room string, requested uint16) (*Room, error) {
	if !ValidRoomName(room) {
		return nil, mpcerrors.NewJoinError(room, "invalid room name", nil)
	}

	payload, err := json.Marshal(issueIndexRequest{PartyIndex: requested})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal issue index request")
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint(room, "issue_unique_idx"), bytes.NewReader(payload))
	if err != nil {
		return nil, mpcerrors.NewJoinError(room, "failed to build join request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, mpcerrors.NewJoinError(room, "coordinator unreachable", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusConflict:
		return nil, mpcerrors.NewJoinError(room, fmt.Sprintf("party index %d already taken", requested), nil)
	default:
		return nil, mpcerrors.NewJoinError(room, "room rejected by coordinator", statusError(resp))
	}

	var out issueIndexResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, mpcerrors.NewJoinError(room, "malformed join response", err)
	}
	if out.UniqueIdx == 0 || (requested != 0 && out.UniqueIdx != requested) {
		return nil, mpcerrors.NewJoinError(room, fmt.Sprintf("coordinator issued unexpected index %d", out.UniqueIdx), nil)
	}

	log.Debug().Str("room", room).Uint16("party_index", out.UniqueIdx).Msg("Joined room")

	return &Room{client: c, name: room, index: out.UniqueIdx}, nil
}

// Resume rebinds to a room whose index was issued earlier. The stream continues after cursor.
func (c *Client) Resume(room string, index uint16, cursor Cursor) (*Room, error) {
	if !ValidRoomName(room) {
		return nil, mpcerrors.NewJoinError(room, "invalid room name", nil)
	}
	if index == 0 {
		return nil, mpcerrors.NewJoinError(room, "party index must be positive", nil)
	}
	return &Room{client: c, name: room, index: index, cursor: cursor}, nil
}

// Room is one party's membership in a relay room.
// Next must be called from a single goroutine; Send may be called concurrently.
type Room struct {
	client *Client
	name   string
	index  uint16

	sendMu sync.Mutex

	mu       sync.Mutex
	cursor   Cursor
	unread   *Message
	stream   *sseStream
	failures int
	closed   bool
}

func (r *Room) Name() string {
	return r.name
}

func (r *Room) PartyIndex() uint16 {
	return r.index
}

// Cursor returns the last delivered sequence id, usable with Client.Resume.
func (r *Room) Cursor() Cursor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

// Send publishes msg to the room. Sends are serialized so peers observe them in call order.
func (r *Room) Send(ctx context.Context, msg *Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}

	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, r.client.opts.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, r.client.endpoint(r.name, "broadcast"), bytes.NewReader(payload))
	if err != nil {
		return mpcerrors.NewJoinError(r.name, "failed to build broadcast request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return mpcerrors.NewJoinError(r.name, "coordinator unreachable", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return mpcerrors.NewJoinError(r.name, "broadcast rejected by coordinator", statusError(resp))
	}
	return nil
}

// Next returns the next message of the room in sequence order. Dropped, idle or
// gapped subscriptions are resumed from the cursor, so every sequence id after the
// cursor is returned exactly once.
func (r *Room) Next(ctx context.Context) (*Message, error) {
	r.mu.Lock()
	if msg := r.unread; msg != nil {
		r.unread = nil
		r.cursor.advance(msg.Seq)
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()

	for {
		stream, err := r.currentStream(ctx)
		if err != nil {
			return nil, err
		}

		ev, err := stream.next(ctx, r.client.opts.IdleTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Debug().Err(err).Str("room", r.name).Str("cursor", r.Cursor().String()).Msg("Subscription interrupted, resuming")
			if !errors.Is(err, errIdleTimeout) {
				r.mu.Lock()
				r.failures++
				r.mu.Unlock()
			}
			r.dropStream()
			continue
		}
		if ev.event != "" && ev.event != EventNewMessage {
			continue
		}

		seq, err := strconv.ParseUint(ev.id, 10, 64)
		if err != nil {
			log.Warn().Str("room", r.name).Str("event_id", ev.id).Msg("Ignoring event without numeric id")
			continue
		}

		r.mu.Lock()
		expected := r.cursor.Next()
		switch {
		case seq < expected:
			r.mu.Unlock()
			continue
		case seq > expected:
			r.failures++
			r.mu.Unlock()
			log.Warn().Str("room", r.name).Uint64("expected", expected).Uint64("got", seq).Msg("Sequence gap detected, resuming")
			r.dropStream()
			continue
		}

		var msg Message
		if err := json.Unmarshal([]byte(ev.data), &msg); err != nil {
			// undecodable envelopes are consumed so the stream can move past them
			r.cursor.advance(seq)
			r.mu.Unlock()
			log.Warn().Err(err).Str("room", r.name).Uint64("seq", seq).Msg("Dropping malformed envelope")
			continue
		}
		msg.Seq = seq
		r.cursor.advance(seq)
		r.failures = 0
		r.mu.Unlock()

		return &msg, nil
	}
}

// Unread takes back msg, the last message returned by Next. The cursor steps back
// before it and the following Next returns it again.
func (r *Room) Unread(msg *Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if last, ok := r.cursor.Last(); !ok || last != msg.Seq || r.unread != nil {
		return
	}
	r.cursor = r.cursor.before(msg.Seq)
	r.unread = msg
}

func (r *Room) currentStream(ctx context.Context) (*sseStream, error) {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, mpcerrors.NewJoinError(r.name, "room closed", nil)
		}
		if r.stream != nil {
			s := r.stream
			r.mu.Unlock()
			return s, nil
		}
		if r.failures >= r.client.opts.MaxReconnects {
			failures := r.failures
			r.mu.Unlock()
			return nil, mpcerrors.NewJoinError(r.name, fmt.Sprintf("subscription failed %d times in a row", failures), nil)
		}
		attempt := r.failures
		cursor := r.cursor
		r.mu.Unlock()

		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * r.client.opts.ReconnectBackoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		stream, err := r.subscribe(ctx, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if mpcerrors.Is(err, mpcerrors.KindJoin) {
				return nil, err
			}
			log.Debug().Err(err).Str("room", r.name).Int("attempt", attempt+1).Msg("Failed to subscribe")
			r.mu.Lock()
			r.failures++
			r.mu.Unlock()
			continue
		}

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			stream.close()
			return nil, mpcerrors.NewJoinError(r.name, "room closed", nil)
		}
		r.stream = stream
		r.mu.Unlock()
		return stream, nil
	}
}

func (r *Room) subscribe(ctx context.Context, cursor Cursor) (*sseStream, error) {
	// the subscription outlives a single Next call, so it gets its own context
	streamCtx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, r.client.endpoint(r.name, "subscribe"), nil)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "failed to build subscribe request")
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if h := cursor.Header(); h != "" {
		req.Header.Set("Last-Event-ID", h)
	}

	type result struct {
		resp *http.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := r.client.http.Do(req)
		done <- result{resp, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		cancel()
		if res := <-done; res.resp != nil {
			res.resp.Body.Close()
		}
		return nil, ctx.Err()
	}
	if res.err != nil {
		cancel()
		return nil, errors.Wrap(res.err, "subscribe request failed")
	}

	switch {
	case res.resp.StatusCode == http.StatusOK:
	case res.resp.StatusCode >= 400 && res.resp.StatusCode < 500:
		err := statusError(res.resp)
		res.resp.Body.Close()
		cancel()
		return nil, mpcerrors.NewJoinError(r.name, "subscription rejected by coordinator", err)
	default:
		err := statusError(res.resp)
		res.resp.Body.Close()
		cancel()
		return nil, err
	}

	log.Debug().Str("room", r.name).Str("cursor", cursor.String()).Msg("Subscribed to room")

	return newSSEStream(res.resp.Body, cancel), nil
}

func (r *Room) dropStream() {
	r.mu.Lock()
	s := r.stream
	r.stream = nil
	r.mu.Unlock()
	if s != nil {
		s.close()
	}
}

// Close ends the subscription. The cursor stays valid for Client.Resume.
func (r *Room) Close() error {
	r.mu.Lock()
	r.closed = true
	s := r.stream
	r.stream = nil
	r.mu.Unlock()
	if s != nil {
		s.close()
	}
	return nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return errors.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
}
