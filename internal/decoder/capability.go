package decoder

// RGBImage is the output of a decode capability: tightly packed
// red, green, blue triples in row-major order.
type RGBImage struct {
	Pix    []byte
	Width  uint16
	Height uint16
}

// Capability decodes an encoded byte stream into RGB triples.
// Implementations must not retain data after returning.
type Capability interface {
	Decode(data []byte) (RGBImage, error)
}

// CapabilityFunc adapts a function to the Capability interface.
type CapabilityFunc func(data []byte) (RGBImage, error)

// Decode calls f(data).
func (f CapabilityFunc) Decode(data []byte) (RGBImage, error) {
	return f(data)
}
