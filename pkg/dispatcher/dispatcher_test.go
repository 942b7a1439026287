package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-rdisq/rdisq/internal/redisconn"
	"github.com/go-rdisq/rdisq/pkg/codec"
	"github.com/go-rdisq/rdisq/pkg/rdisq"
)

func newTestDispatcher(now func() time.Time) (*Dispatcher, *redisconn.Fake) {
	fake := redisconn.NewFake()
	d := New(fake, codec.NewCBORCodec(), WithStalenessWindow(10*time.Second))
	d.now = now
	return d, fake
}

func TestQueueTaskStoresPayloadAndEnqueues(t *testing.T) {
	ctx := context.Background()
	d, fake := newTestDispatcher(time.Now)

	taskID, err := d.QueueTask(ctx, "svc\x1fSum", "test.Sum", []byte("payload"), 5*time.Second)
	require.NoError(t, err)
	assert.NotEmpty(t, taskID)

	key, value, err := fake.BRPop(ctx, time.Second, "svc\x1fSum")
	require.NoError(t, err)
	assert.Equal(t, "svc\x1fSum", key)
	assert.Equal(t, []byte(taskID), value)

	raw, err := fake.Get(ctx, "request_"+taskID)
	require.NoError(t, err)
	var payload rdisq.RequestPayload
	require.NoError(t, codec.NewCBORCodec().Decode(raw, &payload))
	assert.Equal(t, taskID, payload.TaskID)
	assert.Equal(t, "test.Sum", payload.ClassID)
}

func TestListReceiverStatusesGarbageCollectsStaleEntries(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	d, _ := newTestDispatcher(func() time.Time { return clock })

	require.NoError(t, d.UpdateReceiverStatus(ctx, rdisq.ReceiverStatus{UID: "fresh"}))
	clock = base.Add(-20 * time.Second)
	require.NoError(t, d.UpdateReceiverStatus(ctx, rdisq.ReceiverStatus{UID: "stale"}))
	clock = base

	statuses, err := d.ListReceiverStatuses(ctx)
	require.NoError(t, err)
	assert.Contains(t, statuses, rdisq.ServiceUID("fresh"))
	assert.NotContains(t, statuses, rdisq.ServiceUID("stale"))

	// The stale entry must have been HDEL'd, not just filtered.
	statuses2, err := d.ListReceiverStatuses(ctx)
	require.NoError(t, err)
	assert.Len(t, statuses2, 1)
}

func TestQueuesServingExactlyPrefersClassSpecificQueue(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDispatcher(time.Now)

	uidA := rdisq.ServiceUID("a")
	require.NoError(t, d.UpdateReceiverStatus(ctx, rdisq.ReceiverStatus{
		UID:             string(uidA),
		BroadcastQueues: []string{"generic_queue", "svc\x1fSum"},
	}))

	uids := map[rdisq.ServiceUID]struct{}{uidA: {}}
	q, ok, err := d.QueuesServingExactly(ctx, uids, "Sum")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rdisq.QueueName("svc\x1fSum"), q)
}

func TestQueuesServingExactlyReturnsFalseWhenNoMatch(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDispatcher(time.Now)

	_, ok, err := d.QueuesServingExactly(ctx, map[rdisq.ServiceUID]struct{}{"missing": {}}, "Sum")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFilterServicesAppliesPredicateOverFreshStatuses(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDispatcher(time.Now)

	require.NoError(t, d.UpdateReceiverStatus(ctx, rdisq.ReceiverStatus{UID: "a", Tags: map[string]string{"foo": "bar"}}))
	require.NoError(t, d.UpdateReceiverStatus(ctx, rdisq.ReceiverStatus{UID: "b", Tags: map[string]string{"foo": "baz"}}))

	matches, err := d.FilterServices(ctx, func(s rdisq.ReceiverStatus) bool { return s.Tags["foo"] == "bar" })
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a", matches[0].UID)
}

func TestNewQueueNameIsUnique(t *testing.T) {
	d, _ := newTestDispatcher(time.Now)
	assert.NotEqual(t, d.NewQueueName(), d.NewQueueName())
}
