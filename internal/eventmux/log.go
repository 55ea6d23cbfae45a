package eventmux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// OpenLog opens a recorded event stream. "-" reads standard input and a
// .zst suffix selects zstd decompression.
func OpenLog(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	if !strings.HasSuffix(path, ".zst") {
		return f, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to open zstd event log: %w", err)
	}
	return &zstdLog{Decoder: dec, f: f}, nil
}

type zstdLog struct {
	*zstd.Decoder
	f *os.File
}

func (z *zstdLog) Close() error {
	z.Decoder.Close()
	return z.f.Close()
}
