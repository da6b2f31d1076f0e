package codec

import "github.com/chewxy/math32"

// explicitQuant carries caller-supplied quantization geometry: the
// origin corner and a single uniform range covering every component.
type explicitQuant struct {
	bits   int
	origin []float32
	rng    float32
}

// quantCellSize returns the storage size of one quantized value.
func quantCellSize(bits int) int {
	switch {
	case bits <= 8:
		return 1
	case bits <= 16:
		return 2
	default:
		return 4
	}
}

// computeRange derives the per-component minimum corner and the
// largest axis span of the given packed values. A degenerate span
// (all values equal) yields range 1 so quantization stays defined.
func computeRange(values []float32, components int) ([]float32, float32) {
	origin := make([]float32, components)
	maxs := make([]float32, components)
	for c := 0; c < components; c++ {
		origin[c] = math32.Inf(1)
		maxs[c] = math32.Inf(-1)
	}
	for i, v := range values {
		c := i % components
		origin[c] = math32.Min(origin[c], v)
		maxs[c] = math32.Max(maxs[c], v)
	}
	var rng float32
	for c := 0; c < components; c++ {
		if len(values) == 0 {
			origin[c] = 0
			maxs[c] = 0
		}
		rng = math32.Max(rng, maxs[c]-origin[c])
	}
	if rng <= 0 {
		rng = 1
	}
	return origin, rng
}

// quantize maps v onto [0, maxq] within origin+range.
func quantize(v, origin, rng float32, maxq uint32) uint32 {
	t := (v - origin) / rng * float32(maxq)
	if t <= 0 {
		return 0
	}
	q := uint32(math32.Round(t))
	if q > maxq {
		return maxq
	}
	return q
}

// dequantize is the inverse of quantize, up to the step size.
func dequantize(q uint32, origin, rng float32, maxq uint32) float32 {
	return origin + float32(q)/float32(maxq)*rng
}

// groupBytes4 transposes 4-byte groups so that bytes of equal
// significance are stored contiguously, which compresses far better
// for float32 streams of similar magnitude. Input length must be a
// multiple of 4; the transform is its own size.
func groupBytes4(data []byte) []byte {
	n := len(data) / 4
	out := make([]byte, len(data))
	for i := 0; i < n; i++ {
		out[i] = data[i*4]
		out[n+i] = data[i*4+1]
		out[2*n+i] = data[i*4+2]
		out[3*n+i] = data[i*4+3]
	}
	return out
}

// ungroupBytes4 inverts groupBytes4.
func ungroupBytes4(data []byte) []byte {
	n := len(data) / 4
	out := make([]byte, len(data))
	for i := 0; i < n; i++ {
		out[i*4] = data[i]
		out[i*4+1] = data[n+i]
		out[i*4+2] = data[2*n+i]
		out[i*4+3] = data[3*n+i]
	}
	return out
}
