// Package config handles tool configuration loading and management.
package config

import (
	"github.com/Faultbox/dracopack/pkg/pipeline"
)

// Config holds all tool settings.
type Config struct {
	Compression CompressionConfig `yaml:"compression"`
	Animation   AnimationConfig   `yaml:"animation"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// CompressionConfig holds mesh compression settings.
type CompressionConfig struct {
	Level               int    `yaml:"level"`
	PositionBits        int    `yaml:"position_bits"`
	NormalBits          int    `yaml:"normal_bits"`
	TexcoordBits        int    `yaml:"texcoord_bits"`
	ColorBits           int    `yaml:"color_bits"`
	GenericBits         int    `yaml:"generic_bits"`
	UnifiedQuantization bool   `yaml:"unified_quantization"`
	DebugDir            string `yaml:"debug_dir"`
}

// AnimationConfig holds animation compression settings.
type AnimationConfig struct {
	TimestampBits int    `yaml:"timestamp_bits"`
	KeyframeBits  int    `yaml:"keyframe_bits"`
	DebugDir      string `yaml:"debug_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	opts := pipeline.DefaultOptions()
	return &Config{
		Compression: CompressionConfig{
			Level:        opts.CompressionLevel,
			PositionBits: opts.QuantizePositionBits,
			NormalBits:   opts.QuantizeNormalBits,
			TexcoordBits: opts.QuantizeTexcoordBits,
			ColorBits:    opts.QuantizeColorBits,
			GenericBits:  opts.QuantizeGenericBits,
		},
		Animation: AnimationConfig{
			TimestampBits: 12,
			KeyframeBits:  12,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Options converts the compression section to pipeline options.
func (c CompressionConfig) Options() pipeline.Options {
	return pipeline.Options{
		CompressionLevel:     c.Level,
		QuantizePositionBits: c.PositionBits,
		QuantizeNormalBits:   c.NormalBits,
		QuantizeTexcoordBits: c.TexcoordBits,
		QuantizeColorBits:    c.ColorBits,
		QuantizeGenericBits:  c.GenericBits,
		UnifiedQuantization:  c.UnifiedQuantization,
		DebugDir:             c.DebugDir,
	}
}

// Options converts the animation section to pipeline options.
func (c AnimationConfig) Options() pipeline.AnimationOptions {
	return pipeline.AnimationOptions{
		QuantizeTimestampsBits: c.TimestampBits,
		QuantizeKeyframesBits:  c.KeyframeBits,
		DebugDir:               c.DebugDir,
	}
}
