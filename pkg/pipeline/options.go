package pipeline

import (
	"errors"
	"fmt"
)

// ErrInvalidOptions reports a configuration value outside its valid
// range. Options are validated before any document mutation.
var ErrInvalidOptions = errors.New("invalid pipeline options")

// Quantization bit depths are capped at 30 bits; 0 disables
// quantization for the attribute class.
const maxQuantizationBits = 30

// Options configures one compress pass.
type Options struct {
	// CompressionLevel trades encoding speed for compressed size,
	// 0..10. The codec speed is 10 minus the level.
	CompressionLevel int

	// Per-class quantization bit depths, each 0..30. Zero keeps the
	// class at full precision.
	QuantizePositionBits int
	QuantizeNormalBits   int
	QuantizeTexcoordBits int
	QuantizeColorBits    int
	QuantizeGenericBits  int

	// UnifiedQuantization quantizes every primitive's positions
	// against one shared bounding cube instead of per-primitive
	// ranges, avoiding seams between adjacent primitives.
	UnifiedQuantization bool

	// DebugDir, when set, receives one OBJ dump per compressed
	// primitive. Never read back.
	DebugDir string
}

// DefaultOptions returns the bit depths and level used when the
// caller does not care.
func DefaultOptions() Options {
	return Options{
		CompressionLevel:     7,
		QuantizePositionBits: 14,
		QuantizeNormalBits:   10,
		QuantizeTexcoordBits: 12,
		QuantizeColorBits:    8,
		QuantizeGenericBits:  12,
	}
}

// Validate reports the first configuration error, if any.
func (o Options) Validate() error {
	if o.CompressionLevel < 0 || o.CompressionLevel > 10 {
		return fmt.Errorf("compression level %d not in 0..10: %w", o.CompressionLevel, ErrInvalidOptions)
	}
	bits := []struct {
		name string
		v    int
	}{
		{"position", o.QuantizePositionBits},
		{"normal", o.QuantizeNormalBits},
		{"texcoord", o.QuantizeTexcoordBits},
		{"color", o.QuantizeColorBits},
		{"generic", o.QuantizeGenericBits},
	}
	for _, b := range bits {
		if b.v < 0 || b.v > maxQuantizationBits {
			return fmt.Errorf("%s quantization bits %d not in 0..%d: %w",
				b.name, b.v, maxQuantizationBits, ErrInvalidOptions)
		}
	}
	return nil
}

// speed converts the compression level to the codec speed knob.
func (o Options) speed() int {
	return 10 - o.CompressionLevel
}

// AnimationOptions configures one animation compress pass.
type AnimationOptions struct {
	// QuantizeTimestampsBits and QuantizeKeyframesBits are the bit
	// depths for sampler inputs and outputs, each 0..30.
	QuantizeTimestampsBits int
	QuantizeKeyframesBits  int

	// DebugDir, when set, receives one PLY dump per compressed
	// timeline.
	DebugDir string
}

// Validate reports the first configuration error, if any.
func (o AnimationOptions) Validate() error {
	if o.QuantizeTimestampsBits < 0 || o.QuantizeTimestampsBits > maxQuantizationBits {
		return fmt.Errorf("timestamp quantization bits %d not in 0..%d: %w",
			o.QuantizeTimestampsBits, maxQuantizationBits, ErrInvalidOptions)
	}
	if o.QuantizeKeyframesBits < 0 || o.QuantizeKeyframesBits > maxQuantizationBits {
		return fmt.Errorf("keyframe quantization bits %d not in 0..%d: %w",
			o.QuantizeKeyframesBits, maxQuantizationBits, ErrInvalidOptions)
	}
	return nil
}
