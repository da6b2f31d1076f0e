// Package pipeline implements the compression and decompression
// passes over glTF documents: per-primitive geometry extraction,
// quantization planning, primitive deduplication, codec invocation,
// and the buffer/bufferView/accessor graph rewrites that keep the
// document self-consistent afterwards.
package pipeline

import (
	"errors"

	"go.uber.org/zap"

	"github.com/Faultbox/dracopack/pkg/codec"
)

// Pass errors shared by compress and decompress.
var (
	ErrAccessorOutOfRange = errors.New("primitive references a non-existent accessor")
	ErrViewOutOfRange     = errors.New("extension references a non-existent buffer view")
	ErrIndexCount         = errors.New("index count is not a multiple of three")
	ErrEncodeFailed       = errors.New("codec produced an empty payload")
	ErrNoPosition         = errors.New("decoded geometry has no position attribute")
	ErrMissingAttribute   = errors.New("extension attribute is not on the primitive")
)

// Pipeline runs passes against a shared codec context. The context
// is owned by the caller: create it before the first pass and close
// it after the last one.
type Pipeline struct {
	ctx *codec.Context
	log *zap.Logger
}

// New creates a pipeline bound to the given codec context. A nil
// logger disables logging.
func New(ctx *codec.Context, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{ctx: ctx, log: log}
}
