package protocol_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/mpcerrors"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/protocol"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/relay"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type hub struct {
	mu      sync.Mutex
	msgs    []relay.Message
	changed chan struct{}
}

func newHub() *hub {
	return &hub{changed: make(chan struct{})}
}

func (h *hub) publish(msg *relay.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := *msg
	m.Seq = uint64(len(h.msgs))
	h.msgs = append(h.msgs, m)
	close(h.changed)
	h.changed = make(chan struct{})
}

type fakeRoom struct {
	hub     *hub
	index   uint16
	next    uint64
	sendErr error
}

func (r *fakeRoom) Name() string       { return "test-room" }
func (r *fakeRoom) PartyIndex() uint16 { return r.index }

func (r *fakeRoom) Send(ctx context.Context, msg *relay.Message) error {
	if r.sendErr != nil {
		return r.sendErr
	}
	r.hub.publish(msg)
	return nil
}

func (r *fakeRoom) Next(ctx context.Context) (*relay.Message, error) {
	for {
		r.hub.mu.Lock()
		if r.next < uint64(len(r.hub.msgs)) {
			m := r.hub.msgs[r.next]
			r.next++
			r.hub.mu.Unlock()
			return &m, nil
		}
		changed := r.hub.changed
		r.hub.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (r *fakeRoom) Unread(msg *relay.Message) {
	r.hub.mu.Lock()
	defer r.hub.mu.Unlock()
	if r.next == msg.Seq+1 {
		r.next = msg.Seq
	}
}

func (r *fakeRoom) consumed() uint64 {
	r.hub.mu.Lock()
	defer r.hub.mu.Unlock()
	return r.next
}

// sumMachine broadcasts its own value and finishes with the sum of every party's value.
type sumMachine struct {
	self     uint16
	parties  int
	values   map[uint16]int
	out      chan *relay.Message
	stopped  bool
	finished bool
	seen     []*relay.Message
}

func newSumMachine(self uint16, parties int) *sumMachine {
	m := &sumMachine{
		self:    self,
		parties: parties,
		values:  map[uint16]int{self: int(self)},
		out:     make(chan *relay.Message, 1),
	}
	m.out <- relay.NewBroadcast(self, []byte(strconv.Itoa(int(self))))
	return m
}

func (m *sumMachine) Outgoing() <-chan *relay.Message { return m.out }

func (m *sumMachine) Deliver(msg *relay.Message) error {
	m.seen = append(m.seen, msg)
	v, err := strconv.Atoi(string(msg.Body))
	if err != nil {
		return mpcerrors.NewProtocolError("test-room", []uint16{msg.Sender}, "malformed value", err)
	}
	m.values[msg.Sender] = v
	if len(m.values) == m.parties && !m.finished {
		m.finished = true
		close(m.out)
	}
	return nil
}

func (m *sumMachine) Result() (interface{}, error) {
	sum := 0
	for _, v := range m.values {
		sum += v
	}
	return sum, nil
}

func (m *sumMachine) Stop() {
	if !m.stopped && !m.finished {
		m.stopped = true
		close(m.out)
	}
}

func TestExecutorRunsAllParties(t *testing.T) {
	h := newHub()
	const parties = 3
	results := make([]interface{}, parties)
	machines := make([]*sumMachine, parties)

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < parties; i++ {
		i := i
		machines[i] = newSumMachine(uint16(i+1), parties)
		g.Go(func() error {
			res, err := protocol.NewExecutor("test").Run(ctx, &fakeRoom{hub: h, index: uint16(i + 1)}, machines[i])
			results[i] = res
			return err
		})
	}
	require.NoError(t, g.Wait())

	for i := 0; i < parties; i++ {
		assert.Equal(t, 6, results[i])
		for _, msg := range machines[i].seen {
			assert.NotEqual(t, uint16(i+1), msg.Sender, "own messages must not be delivered")
		}
	}
}

func TestExecutorSkipsMessagesForOtherParties(t *testing.T) {
	h := newHub()
	h.publish(relay.NewP2P(2, 3, []byte("100")))
	h.publish(relay.NewP2P(2, 1, []byte("2")))

	m := newSumMachine(1, 2)
	res, err := protocol.NewExecutor("test").Run(context.Background(), &fakeRoom{hub: h, index: 1}, m)
	require.NoError(t, err)
	assert.Equal(t, 3, res)
	require.Len(t, m.seen, 1)
	assert.Equal(t, uint64(1), m.seen[0].Seq)
}

func TestExecutorProtocolErrorIsFatal(t *testing.T) {
	h := newHub()
	h.publish(relay.NewBroadcast(2, []byte("not a number")))

	m := newSumMachine(1, 3)
	_, err := protocol.NewExecutor("test").Run(context.Background(), &fakeRoom{hub: h, index: 1}, m)
	require.Error(t, err)
	assert.True(t, mpcerrors.Is(err, mpcerrors.KindProtocol))
	assert.Equal(t, []uint16{2}, mpcerrors.Culprits(err))
	assert.True(t, m.stopped)
}

func TestExecutorSendError(t *testing.T) {
	sendErr := mpcerrors.NewJoinError("test-room", "coordinator unreachable", errors.New("connection refused"))
	m := newSumMachine(1, 2)
	_, err := protocol.NewExecutor("test").Run(context.Background(), &fakeRoom{hub: newHub(), index: 1, sendErr: sendErr}, m)
	assert.ErrorIs(t, err, sendErr)
	assert.True(t, m.stopped)
}

func TestExecutorCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	m := newSumMachine(1, 2)
	_, err := protocol.NewExecutor("test").Run(ctx, &fakeRoom{hub: newHub(), index: 1}, m)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, m.stopped)
}

// gatedMachine never finishes. Its first Deliver blocks until release is closed.
type gatedMachine struct {
	out        chan *relay.Message
	delivering chan struct{}
	release    chan struct{}
	seen       []*relay.Message
}

func (m *gatedMachine) Outgoing() <-chan *relay.Message { return m.out }

func (m *gatedMachine) Deliver(msg *relay.Message) error {
	m.seen = append(m.seen, msg)
	if len(m.seen) == 1 {
		close(m.delivering)
		<-m.release
	}
	return nil
}

func (m *gatedMachine) Result() (interface{}, error) { return nil, nil }
func (m *gatedMachine) Stop()                        {}

func TestExecutorCancellationKeepsUndeliveredMessage(t *testing.T) {
	h := newHub()
	h.publish(relay.NewBroadcast(2, []byte("2")))
	room := &fakeRoom{hub: h, index: 1}
	m := &gatedMachine{
		out:        make(chan *relay.Message),
		delivering: make(chan struct{}),
		release:    make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		_, err := protocol.NewExecutor("test").Run(ctx, room, m)
		errc <- err
	}()

	<-m.delivering
	// the second message is read from the room while the machine is still busy
	h.publish(relay.NewBroadcast(3, []byte("3")))
	require.Eventually(t, func() bool { return room.consumed() == 2 }, time.Second, time.Millisecond)

	cancel()
	close(m.release)

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("executor did not return after cancellation")
	}

	assert.Equal(t, uint64(len(m.seen)), room.consumed(), "room must count exactly the delivered messages")
	for i, msg := range m.seen {
		assert.Equal(t, uint64(i), msg.Seq)
	}
}

func TestPartyIDs(t *testing.T) {
	idx, err := protocol.PartyIndex(protocol.PartyID(7))
	require.NoError(t, err)
	assert.Equal(t, uint16(7), idx)
	assert.Equal(t, []uint16{1, 2, 3}, protocol.AllParties(3))
	assert.Equal(t, []uint16{1, 3}, protocol.PartyIndices(protocol.PartyIDs([]uint16{3, 1})))

	_, err = protocol.PartyIndex("0")
	assert.Error(t, err)
	_, err = protocol.PartyIndex("alice")
	assert.Error(t, err)
}
