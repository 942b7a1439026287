package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// CBORCodec is the default Codec: a compact binary encoding of the payload
// structs under their explicit cbor struct tags, encoded and decoded with
// github.com/fxamacker/cbor/v2.
type CBORCodec struct {
	encMode cbor.EncMode
	decMode cbor.DecMode
}

// NewCBORCodec builds a CBORCodec with canonical (deterministic) encoding so
// that two processes sharing the same Go structs produce byte-identical
// payloads for identical values, and a decode mode that resolves an
// undeclared map (a caller decoding a handler's returned value into a bare
// `any`, as request.Request.Wait does) to map[string]interface{} rather than
// the library's own default of map[interface{}]interface{} — every map this
// core ever puts on the wire (tags, session data, kwargs, registered-message
// sets) has string keys.
func NewCBORCodec() *CBORCodec {
	encMode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		// CanonicalEncOptions() never produces an invalid EncMode; a failure
		// here means the cbor dependency itself is broken.
		panic("rdisq/codec: failed to build canonical cbor encoder: " + err.Error())
	}
	decMode, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}.DecMode()
	if err != nil {
		panic("rdisq/codec: failed to build cbor decoder: " + err.Error())
	}
	return &CBORCodec{encMode: encMode, decMode: decMode}
}

func (c *CBORCodec) Encode(v any) ([]byte, error) {
	return c.encMode.Marshal(v)
}

func (c *CBORCodec) Decode(data []byte, v any) error {
	return c.decMode.Unmarshal(data, v)
}
