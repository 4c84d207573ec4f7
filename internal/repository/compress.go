package repository

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Snapshots are small and written rarely, so the encoder favours ratio.
var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	decoder, _ = zstd.NewReader(nil)
)

func compress(payload []byte) []byte {
	return encoder.EncodeAll(payload, make([]byte, 0, len(payload)/2))
}

func decompress(blob []byte) ([]byte, error) {
	out, err := decoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("error decompressing snapshot: %w", err)
	}
	return out, nil
}
