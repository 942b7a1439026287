// Package codec defines the pluggable symmetric encode/decode boundary used
// for every payload that crosses Redis: request payloads, response payloads,
// receiver status records, and application messages. The core only ever
// depends on this interface, never on a specific wire format.
package codec

// Codec encodes and decodes arbitrary application values. Implementations
// must be deterministic enough that a captured error survives a round trip
// as an error of the same logical kind (see rdisq.EncodedError).
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}
