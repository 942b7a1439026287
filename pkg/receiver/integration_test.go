package receiver_test

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-rdisq/rdisq/internal/redisconn"
	"github.com/go-rdisq/rdisq/pkg/codec"
	"github.com/go-rdisq/rdisq/pkg/control"
	"github.com/go-rdisq/rdisq/pkg/dispatcher"
	"github.com/go-rdisq/rdisq/pkg/handler"
	"github.com/go-rdisq/rdisq/pkg/rdisq"
	"github.com/go-rdisq/rdisq/pkg/receiver"
	"github.com/go-rdisq/rdisq/pkg/request"
)

// sumMsg is served by a stateless free handler.
type sumMsg struct{ A, B int }

func (sumMsg) ClassID() string { return "it.Sum" }

// addMsg is served by a bound handler over a summer, and opts into session
// threading via the embedded SessionMixin.
type addMsg struct {
	rdisq.SessionMixin
	N int
}

func (addMsg) ClassID() string { return "it.Add" }

// summer is the per-receiver instance addMsg's handler accumulates into.
type summer struct {
	mu    sync.Mutex
	sum   int
	calls int
}

var summerType = reflect.TypeOf((*summer)(nil))

func (s *summer) add(n int) (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sum += n
	s.calls++
	return s.sum, s.calls
}

func (s *summer) value() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sum
}

func addHandlerFunc(s *summer) handler.HandlerFunc {
	return func(msg rdisq.Message) (any, error) {
		m := msg.(*addMsg)
		total, calls := s.add(m.N)
		return rdisq.SessionResult{Value: total, SessionData: rdisq.SessionData{"calls": calls}}, nil
	}
}

// harness wires one shared Fake broker plus a Dispatcher and tracks every
// receiver's Process goroutine for cleanup.
type harness struct {
	ctx  context.Context
	conn *redisconn.Fake
	disp *dispatcher.Dispatcher
	wg   sync.WaitGroup
}

func newHarness(t *testing.T) *harness {
	ctx, cancel := context.WithCancel(context.Background())
	conn := redisconn.NewFake()
	disp := dispatcher.New(conn, codec.NewCBORCodec(), dispatcher.WithStalenessWindow(time.Minute))
	h := &harness{ctx: ctx, conn: conn, disp: disp}
	t.Cleanup(func() {
		cancel()
		h.wg.Wait()
	})
	return h
}

// receiverBuilder accumulates handler descriptors before the receiver's
// Process loop starts, since Registry.Set* rejects a second registration of
// the same class id (handler.Default would leak across subtests).
type receiverBuilder struct {
	h    *harness
	reg  *handler.Registry
	name string
	uid  rdisq.ServiceUID
}

func (h *harness) receiver(serviceName string, uid rdisq.ServiceUID) *receiverBuilder {
	return &receiverBuilder{h: h, reg: handler.New(), name: serviceName, uid: uid}
}

func (b *receiverBuilder) withSum() *receiverBuilder {
	_ = b.reg.SetFreeHandler("it.Sum", func() rdisq.Message { return &sumMsg{} }, func(msg rdisq.Message) (any, error) {
		m := msg.(*sumMsg)
		return m.A + m.B, nil
	})
	return b
}

func (b *receiverBuilder) withAdd() *receiverBuilder {
	_ = b.reg.SetBoundHandler("it.Add", func() rdisq.Message { return &addMsg{} }, summerType,
		func(instance any) (handler.HandlerFunc, error) { return addHandlerFunc(instance.(*summer)), nil }, nil)
	return b
}

// start builds the Receiver, registers whichever message classes withSum/
// withAdd were called for, starts its Process loop, and returns it.
func (b *receiverBuilder) start(t *testing.T, sumRegistered, addRegistered bool, addInstance *summer) *receiver.Receiver {
	t.Helper()
	r := receiver.New(b.name, b.h.disp, b.h.conn, codec.NewCBORCodec(),
		receiver.WithRegistry(b.reg),
		receiver.WithUID(b.uid),
		receiver.WithPollTimeout(20*time.Millisecond),
	)
	if sumRegistered {
		_, err := r.RegisterMessage("it.Sum", nil)
		require.NoError(t, err)
	}
	if addRegistered {
		_, err := r.RegisterMessage("it.Add", addInstance)
		require.NoError(t, err)
	}
	b.h.wg.Add(1)
	go func() {
		defer b.h.wg.Done()
		_ = r.Process(b.h.ctx)
	}()
	return r
}

func waitForStatus(t *testing.T, h *harness, uid rdisq.ServiceUID) {
	t.Helper()
	require.Eventually(t, func() bool {
		statuses, err := h.disp.ListReceiverStatuses(h.ctx)
		require.NoError(t, err)
		_, ok := statuses[uid]
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestSumRoundTrip(t *testing.T) {
	h := newHarness(t)
	r := h.receiver("svc", "uid-1").withSum().start(t, true, false, nil)
	waitForStatus(t, h, r.UID())

	req, err := request.New(h.disp, h.conn, &sumMsg{A: 1, B: 2})
	require.NoError(t, err)
	value, err := req.SendAndWait(h.ctx, time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, 3, value)
}

func TestSequentialAddOnSameReceiverAccumulates(t *testing.T) {
	h := newHarness(t)
	s := &summer{}
	r := h.receiver("svc", "uid-1").withAdd().start(t, false, true, s)
	waitForStatus(t, h, r.UID())

	req1, err := request.New(h.disp, h.conn, &addMsg{N: 1}, request.WithTargets(r.UID()))
	require.NoError(t, err)
	v1, err := req1.SendAndWait(h.ctx, time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, 1, v1)

	req2, err := request.New(h.disp, h.conn, &addMsg{N: 2}, request.WithTargets(r.UID()))
	require.NoError(t, err)
	v2, err := req2.SendAndWait(h.ctx, time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, 3, v2)
	assert.Equal(t, 3, s.value())
}

func TestUnregisterMakesSubsequentSendTimeOut(t *testing.T) {
	h := newHarness(t)
	s := &summer{}
	r := h.receiver("svc", "uid-1").withAdd().start(t, false, true, s)
	waitForStatus(t, h, r.UID())

	_, err := r.UnregisterMessage("it.Add")
	require.NoError(t, err)

	req, err := request.New(h.disp, h.conn, &addMsg{N: 1}, request.WithTargets(r.UID()))
	require.NoError(t, err)
	err = req.SendAsync(h.ctx, time.Second)
	// Unregistering also removed the receiver's direct queue for it.Add, so
	// no queue serves this single-uid target set for this class: resolving
	// one bootstraps a fresh queue nobody will ever pop from, and Wait
	// times out.
	require.NoError(t, err)
	_, err = req.Wait(h.ctx, 300*time.Millisecond)
	require.Error(t, err)
	assert.IsType(t, &rdisq.TimeoutError{}, err)
}

func TestMultiRequestFansOutToEveryMatchingReceiver(t *testing.T) {
	h := newHarness(t)
	r1 := h.receiver("svc", "uid-1").withSum().start(t, true, false, nil)
	r2 := h.receiver("svc", "uid-2").withSum().start(t, true, false, nil)
	waitForStatus(t, h, r1.UID())
	waitForStatus(t, h, r2.UID())

	mr, err := request.NewMulti(h.disp, h.conn, &sumMsg{A: 1, B: 3})
	require.NoError(t, err)
	results, err := mr.SendAndWait(h.ctx, 2*time.Second)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, v := range results {
		assert.EqualValues(t, 4, v)
	}
}

func TestMultiRequestWithTagFilterOnlyReachesTaggedReceivers(t *testing.T) {
	h := newHarness(t)
	tagged1 := h.receiver("svc", "tagged-1").withAdd().start(t, false, true, &summer{})
	tagged2 := h.receiver("svc", "tagged-2").withAdd().start(t, false, true, &summer{})
	plainS1, plainS2 := &summer{}, &summer{}
	plain1 := h.receiver("svc", "plain-1").withAdd().start(t, false, true, plainS1)
	plain2 := h.receiver("svc", "plain-2").withAdd().start(t, false, true, plainS2)

	for _, r := range []*receiver.Receiver{tagged1, tagged2, plain1, plain2} {
		waitForStatus(t, h, r.UID())
	}
	_, err := tagged1.SetTags(map[string]string{"foo": "bar"})
	require.NoError(t, err)
	_, err = tagged2.SetTags(map[string]string{"foo": "bar"})
	require.NoError(t, err)
	// SetTags doesn't itself publish; give the next heartbeat a chance.
	require.Eventually(t, func() bool {
		statuses, err := h.disp.ListReceiverStatuses(h.ctx)
		require.NoError(t, err)
		return statuses[tagged1.UID()].Tags["foo"] == "bar" && statuses[tagged2.UID()].Tags["foo"] == "bar"
	}, time.Second, 5*time.Millisecond)

	mr, err := request.NewMulti(h.disp, h.conn, &addMsg{N: 3}, request.WithFilter(func(s rdisq.ReceiverStatus) bool {
		return s.Tags["foo"] == "bar"
	}))
	require.NoError(t, err)
	results, err := mr.SendAndWait(h.ctx, 2*time.Second)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, v := range results {
		assert.EqualValues(t, 3, v)
	}
	assert.Equal(t, 0, plainS1.value())
	assert.Equal(t, 0, plainS2.value())
}

func TestSessionStickinessPinsToFirstRespondingReceiver(t *testing.T) {
	h := newHarness(t)
	s1, s2 := &summer{}, &summer{}
	r1 := h.receiver("svc", "uid-1").withAdd().start(t, false, true, s1)
	r2 := h.receiver("svc", "uid-2").withAdd().start(t, false, true, s2)
	waitForStatus(t, h, r1.UID())
	waitForStatus(t, h, r2.UID())

	sess := request.NewSession(h.disp, h.conn, nil)
	v1, err := sess.SendAndWait(h.ctx, &addMsg{N: 2}, time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, 2, v1)
	require.NotEmpty(t, sess.SessionData())
	assert.EqualValues(t, 1, sess.SessionData()["calls"])

	v2, err := sess.SendAndWait(h.ctx, &addMsg{N: 2}, time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, 4, v2)
	assert.EqualValues(t, 2, sess.SessionData()["calls"])

	// Exactly one of the two summers received both calls.
	totals := []int{s1.value(), s2.value()}
	assert.Contains(t, totals, 4)
	assert.Contains(t, totals, 0)
}

func TestControlMessageGetRegisteredMessagesOverWire(t *testing.T) {
	h := newHarness(t)
	r := h.receiver("svc", "uid-1").withSum().start(t, true, false, nil)
	waitForStatus(t, h, r.UID())

	req, err := request.New(h.disp, h.conn, &control.GetRegisteredMessagesMessage{}, request.WithTargets(r.UID()))
	require.NoError(t, err)
	value, err := req.SendAndWait(h.ctx, time.Second)
	require.NoError(t, err)
	classes, ok := value.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, classes, "it.Sum")
}
