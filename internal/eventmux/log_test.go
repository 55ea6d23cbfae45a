package eventmux

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/radar.overlay/internal/scheduler"
)

const recorded = `{"type":"area_changed","area":"A"}
{"type":"closed"}
`

func TestOpenLog(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "events.jsonl")
	require.NoError(t, os.WriteFile(plain, []byte(recorded), 0o644))

	compressed := filepath.Join(dir, "events.jsonl.zst")
	f, err := os.Create(compressed)
	require.NoError(t, err)
	enc, err := zstd.NewWriter(f)
	require.NoError(t, err)
	_, err = enc.Write([]byte(recorded))
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	for _, path := range []string{plain, compressed} {
		t.Run(filepath.Base(path), func(t *testing.T) {
			src, err := OpenLog(path)
			require.NoError(t, err)
			m := New(src, nil)
			_, ch := m.Subscribe()
			require.NoError(t, m.Monitor(context.Background()))

			var got []scheduler.EventType
			for _, ev := range drain(ch) {
				got = append(got, ev.Type)
			}
			assert.Equal(t, []scheduler.EventType{scheduler.AreaChanged, scheduler.Closed}, got)
			assert.NoError(t, m.Close())
		})
	}
}

func TestOpenLogMissing(t *testing.T) {
	_, err := OpenLog(filepath.Join(t.TempDir(), "missing.jsonl.zst"))
	assert.Error(t, err)
}
