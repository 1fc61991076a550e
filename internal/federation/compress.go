package federation

import (
	"github.com/klauspost/compress/zstd"
)

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(1<<20))
)

// CompressTemplateBlob compresses a hex block-template blob with zstd
// before it is attached to a found-block BlockEvent.
func CompressTemplateBlob(data []byte) []byte {
	return zstdEncoder.EncodeAll(data, nil)
}

// DecompressTemplateBlob decompresses a BlockEvent's template blob. If the
// data does not start with the zstd magic bytes it is returned as-is, for
// forward compatibility with peers that send an uncompressed blob.
func DecompressTemplateBlob(data []byte) ([]byte, error) {
	if len(data) < 4 || data[0] != 0x28 || data[1] != 0xB5 || data[2] != 0x2F || data[3] != 0xFD {
		return data, nil
	}
	return zstdDecoder.DecodeAll(data, nil)
}
