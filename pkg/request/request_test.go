package request

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-rdisq/rdisq/internal/redisconn"
	"github.com/go-rdisq/rdisq/pkg/codec"
	"github.com/go-rdisq/rdisq/pkg/dispatcher"
	"github.com/go-rdisq/rdisq/pkg/identity"
	"github.com/go-rdisq/rdisq/pkg/rdisq"
)

type fakeMsg struct{ V int }

func (fakeMsg) ClassID() string { return "test.Fake" }

func newTestDeps() (*dispatcher.Dispatcher, *redisconn.Fake) {
	conn := redisconn.NewFake()
	return dispatcher.New(conn, codec.NewCBORCodec()), conn
}

// publishLiveTarget records a fresh status for uid listening on its own
// direct queue for test.Fake, with no receiver loop behind it, so a request
// pinned to uid resolves that queue instead of bootstrapping one through an
// AddQueue round trip nobody would answer.
func publishLiveTarget(t *testing.T, disp *dispatcher.Dispatcher, uid rdisq.ServiceUID) {
	t.Helper()
	require.NoError(t, disp.UpdateReceiverStatus(context.Background(), rdisq.ReceiverStatus{
		UID:                string(uid),
		RegisteredMessages: []string{"test.Fake"},
		BroadcastQueues:    []string{string(identity.DirectQueueName(uid, "svc", "test.Fake"))},
	}))
}

func TestNewRejectsBothFilterAndTargets(t *testing.T) {
	disp, conn := newTestDeps()
	_, err := New(disp, conn, &fakeMsg{}, WithFilter(func(rdisq.ReceiverStatus) bool { return true }), WithTargets("uid"))
	require.Error(t, err)
	assert.IsType(t, &rdisq.InvalidArgumentError{}, err)
}

func TestSendAsyncFailsWithNoSuitableReceiver(t *testing.T) {
	disp, conn := newTestDeps()
	req, err := New(disp, conn, &fakeMsg{})
	require.NoError(t, err)

	err = req.SendAsync(context.Background(), time.Second)
	require.Error(t, err)
	assert.IsType(t, &rdisq.NoSuitableReceiverError{}, err)
}

func TestSendAsyncTwiceFails(t *testing.T) {
	disp, conn := newTestDeps()
	publishLiveTarget(t, disp, "uid-1")
	req, err := New(disp, conn, &fakeMsg{}, WithTargets("uid-1"))
	require.NoError(t, err)

	require.NoError(t, req.SendAsync(context.Background(), time.Second))
	err = req.SendAsync(context.Background(), time.Second)
	require.Error(t, err)
	assert.IsType(t, &rdisq.InvalidArgumentError{}, err)
}

func TestWaitWithoutSendFails(t *testing.T) {
	disp, conn := newTestDeps()
	req, err := New(disp, conn, &fakeMsg{})
	require.NoError(t, err)

	_, err = req.Wait(context.Background(), time.Second)
	require.Error(t, err)
	assert.IsType(t, &rdisq.InvalidArgumentError{}, err)
}

func TestWaitTimesOutWithNoReceiver(t *testing.T) {
	disp, conn := newTestDeps()
	publishLiveTarget(t, disp, "uid-1")
	req, err := New(disp, conn, &fakeMsg{}, WithTargets("uid-1"))
	require.NoError(t, err)

	require.NoError(t, req.SendAsync(context.Background(), time.Second))
	_, err = req.Wait(context.Background(), 50*time.Millisecond)
	require.Error(t, err)
	timeoutErr, ok := err.(*rdisq.TimeoutError)
	require.True(t, ok)
	assert.Equal(t, req.TaskID(), timeoutErr.TaskID)
}

func TestWaitSurfacesHandlerException(t *testing.T) {
	disp, conn := newTestDeps()
	publishLiveTarget(t, disp, "uid-1")
	req, err := New(disp, conn, &fakeMsg{}, WithTargets("uid-1"))
	require.NoError(t, err)
	require.NoError(t, req.SendAsync(context.Background(), time.Second))

	resp := rdisq.ResponsePayload{
		RaisedException: &rdisq.EncodedError{Kind: "ValueError", Message: "boom"},
		ServiceUID:      "uid-1",
	}
	encoded, encErr := codec.NewCBORCodec().Encode(resp)
	require.NoError(t, encErr)
	require.NoError(t, conn.LPush(context.Background(), req.TaskID(), encoded))

	_, err = req.Wait(context.Background(), time.Second)
	require.Error(t, err)
	handlerErr, ok := err.(*rdisq.HandlerError)
	require.True(t, ok)
	assert.Equal(t, "ValueError", handlerErr.Kind)
	assert.Contains(t, handlerErr.Error(), "boom")
}
