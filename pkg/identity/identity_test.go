package identity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-rdisq/rdisq/pkg/rdisq"
)

func TestNewServiceUIDIsUnique(t *testing.T) {
	a := NewServiceUID()
	b := NewServiceUID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestNewTaskIDIncludesQueueNameAndIsUnique(t *testing.T) {
	queue := rdisq.QueueName("svc\x1fSum")
	a := NewTaskID(queue)
	b := NewTaskID(queue)

	require.True(t, strings.HasPrefix(a, string(queue)))
	assert.NotEqual(t, a, b)
}

func TestRequestKey(t *testing.T) {
	assert.Equal(t, "request_abc123", RequestKey("abc123"))
}

func TestBroadcastAndDirectQueueNamesDoNotCollideOnUnderscores(t *testing.T) {
	// A service or uid containing an underscore must not be able to produce
	// the same queue name as a differently-split set of components.
	broadcast := BroadcastQueueName("svc_a", "Sum")
	direct := DirectQueueName("uid_b", "svc_a", "Sum")

	assert.NotEqual(t, string(broadcast), string(direct))
	assert.True(t, HasClassSuffix(broadcast, "Sum"))
	assert.True(t, HasClassSuffix(direct, "Sum"))
	assert.False(t, HasClassSuffix(direct, "Other"))
}

func TestNewDispatchQueueNameIsPrefixedAndUnique(t *testing.T) {
	a := NewDispatchQueueName()
	b := NewDispatchQueueName()
	assert.True(t, strings.HasPrefix(a, "rdisq_queue__"))
	assert.NotEqual(t, a, b)
}

func TestServiceUIDListKey(t *testing.T) {
	assert.Equal(t, "rdisq_uids:svc", ServiceUIDListKey("svc"))
}
