package codec

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// compressionTag identifies the byte-compression backend of one
// payload block. Stored in the container, so values are format
// constants.
type compressionTag uint8

const (
	// compressionNone stores the bytes verbatim. Chosen whenever a
	// backend fails to shrink the payload.
	compressionNone compressionTag = 0

	// compressionLZ4 is the fast path for high encoder speeds.
	compressionLZ4 compressionTag = 1

	// compressionZstd trades CPU for ratio at lower speeds.
	compressionZstd compressionTag = 2
)

// zstdEncoder and zstdDecoder are shared across calls; both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("codec: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("codec: zstd decoder initialization failed: " + err.Error())
	}
}

// compressPayload compresses raw with the preferred backend, falling
// back to verbatim storage when the backend fails or does not shrink
// the data.
func compressPayload(raw []byte, preferred compressionTag) (compressionTag, []byte) {
	switch preferred {
	case compressionLZ4:
		bound := lz4.CompressBlockBound(len(raw))
		dst := make([]byte, bound)
		written, err := lz4.CompressBlock(raw, dst, nil)
		if err == nil && written > 0 && written < len(raw) {
			return compressionLZ4, dst[:written]
		}
	case compressionZstd:
		dst := zstdEncoder.EncodeAll(raw, nil)
		if len(dst) < len(raw) {
			return compressionZstd, dst
		}
	}
	return compressionNone, raw
}

// decompressPayload inverts compressPayload. rawLen must match the
// original payload length exactly.
func decompressPayload(comp []byte, tag compressionTag, rawLen int) ([]byte, error) {
	switch tag {
	case compressionNone:
		if len(comp) != rawLen {
			return nil, fmt.Errorf("stored payload is %d bytes, expected %d: %w",
				len(comp), rawLen, ErrTruncatedPayload)
		}
		return comp, nil

	case compressionLZ4:
		dst := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(comp, dst)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if n != rawLen {
			return nil, fmt.Errorf("lz4 payload is %d bytes, expected %d: %w",
				n, rawLen, ErrTruncatedPayload)
		}
		return dst, nil

	case compressionZstd:
		dst, err := zstdDecoder.DecodeAll(comp, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(dst) != rawLen {
			return nil, fmt.Errorf("zstd payload is %d bytes, expected %d: %w",
				len(dst), rawLen, ErrTruncatedPayload)
		}
		return dst, nil

	default:
		return nil, fmt.Errorf("unknown compression tag %d", tag)
	}
}
