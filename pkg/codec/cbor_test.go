package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type samplePayload struct {
	Name  string            `cbor:"name"`
	Count int               `cbor:"count"`
	Tags  map[string]string `cbor:"tags"`
}

func TestCBORCodecRoundTrip(t *testing.T) {
	c := NewCBORCodec()
	in := samplePayload{Name: "sum", Count: 3, Tags: map[string]string{"foo": "bar"}}

	data, err := c.Encode(in)
	require.NoError(t, err)

	var out samplePayload
	require.NoError(t, c.Decode(data, &out))
	assert.Equal(t, in, out)
}

func TestCBORCodecIsDeterministic(t *testing.T) {
	c := NewCBORCodec()
	in := samplePayload{Name: "sum", Count: 3, Tags: map[string]string{"a": "1", "b": "2"}}

	first, err := c.Encode(in)
	require.NoError(t, err)
	second, err := c.Encode(in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
