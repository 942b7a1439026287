package request

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-rdisq/rdisq/pkg/codec"
	"github.com/go-rdisq/rdisq/pkg/rdisq"
)

func TestMultiRequestPartialTimeoutWhenNotAllTargetsReply(t *testing.T) {
	disp, conn := newTestDeps()
	publishLiveTarget(t, disp, "uid-1")
	publishLiveTarget(t, disp, "uid-2")
	mr, err := NewMulti(disp, conn, &fakeMsg{}, WithTargets("uid-1", "uid-2"))
	require.NoError(t, err)
	require.NoError(t, mr.SendAsync(context.Background(), time.Second))

	// Only one of the two targets ever answers.
	var respondingTaskID string
	for _, c := range mr.children {
		if c.uid == "uid-1" {
			respondingTaskID = c.request.TaskID()
		}
	}
	require.NotEmpty(t, respondingTaskID)
	resp := rdisq.ResponsePayload{ServiceUID: "uid-1"}
	encoded, encErr := codec.NewCBORCodec().Encode(resp)
	require.NoError(t, encErr)
	require.NoError(t, conn.LPush(context.Background(), respondingTaskID, encoded))

	_, err = mr.Wait(context.Background(), 100*time.Millisecond)
	require.Error(t, err)
	partial, ok := err.(*rdisq.PartialTimeoutError)
	require.True(t, ok)
	assert.Equal(t, 1, partial.Got)
	assert.Equal(t, 2, partial.Expected)
}

func TestMultiRequestNoSuitableReceiverWhenTargetSetEmpty(t *testing.T) {
	disp, conn := newTestDeps()
	mr, err := NewMulti(disp, conn, &fakeMsg{})
	require.NoError(t, err)

	err = mr.SendAsync(context.Background(), time.Second)
	require.Error(t, err)
	assert.IsType(t, &rdisq.NoSuitableReceiverError{}, err)
}
