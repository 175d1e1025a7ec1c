package compress_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyaware/skyaware/internal/compress"
)

func TestEncodeDecode(t *testing.T) {
	payload := bytes.Repeat([]byte(`{"aqi":42,"category":"Good"}`), 200)

	encoded := compress.Encode(payload)
	assert.True(t, compress.IsCompressed(encoded))
	assert.Less(t, len(encoded), len(payload))

	decoded, err := compress.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestMaybeDecode_PassesPlainDataThrough(t *testing.T) {
	plain := []byte(`{"timestamp":"2024-01-01T00:00:00Z"}`)

	out, err := compress.MaybeDecode(plain)
	require.NoError(t, err)
	assert.Equal(t, plain, out)
}

func TestDecode_CorruptFrame(t *testing.T) {
	encoded := compress.Encode([]byte("hello world hello world"))
	corrupt := append([]byte{}, encoded[:len(encoded)-3]...)

	_, err := compress.Decode(corrupt)
	assert.Error(t, err)
}
