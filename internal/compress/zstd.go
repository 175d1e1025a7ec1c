// Package compress wraps zstd for cache blobs and granule files.
package compress

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var magic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var (
	encoderOnce sync.Once
	encoder     *zstd.Encoder

	// decoderPool provides reusable zstd decoders to avoid repeated allocations.
	decoderPool = sync.Pool{
		New: func() any {
			d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
			if err != nil {
				// This should never fail with nil input and default options.
				panic(fmt.Sprintf("failed to create zstd decoder: %v", err))
			}
			return d
		},
	}
)

func sharedEncoder() *zstd.Encoder {
	encoderOnce.Do(func() {
		e, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd encoder: %v", err))
		}
		encoder = e
	})
	return encoder
}

// Encode compresses data into a single zstd frame.
func Encode(data []byte) []byte {
	return sharedEncoder().EncodeAll(data, make([]byte, 0, len(data)/4))
}

// IsCompressed reports whether data starts with the zstd frame magic.
func IsCompressed(data []byte) bool {
	return bytes.HasPrefix(data, magic)
}

// Decode decompresses a zstd payload.
func Decode(data []byte) ([]byte, error) {
	decoder := decoderPool.Get().(*zstd.Decoder)
	defer decoderPool.Put(decoder)

	result, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompression failed: %w", err)
	}
	return result, nil
}

// MaybeDecode decompresses data if it is a zstd frame and returns it
// unchanged otherwise.
func MaybeDecode(data []byte) ([]byte, error) {
	if !IsCompressed(data) {
		return data, nil
	}
	return Decode(data)
}
