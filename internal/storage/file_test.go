package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/banddump/internal/protocol"
)

func TestFileSink_Persist(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out", "nested")
	sink := NewFileSink(dir, "band.bin")
	assert.Empty(t, sink.Path())

	image := []byte{1, 2, 3, 4}
	require.NoError(t, sink.Persist(image))

	path := filepath.Join(dir, "band.bin")
	assert.Equal(t, path, sink.Path())
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, image, got)

	// No temporary files remain
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileSink_Overwrite(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir, "band.bin")

	require.NoError(t, sink.Persist([]byte("first image")))
	require.NoError(t, sink.Persist([]byte("second")))

	got, err := os.ReadFile(filepath.Join(dir, "band.bin"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestFileSink_DefaultName(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir, "")
	sink.now = func() time.Time { return time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC) }

	require.NoError(t, sink.Persist([]byte{0}))
	assert.Equal(t, filepath.Join(dir, "tracker-20240301T123000Z.bin"), sink.Path())
}

func TestFileSink_UnwritableDir(t *testing.T) {
	parent := t.TempDir()
	blocker := filepath.Join(parent, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	sink := NewFileSink(filepath.Join(blocker, "sub"), "band.bin")
	assert.Error(t, sink.Persist([]byte{1}))
	assert.Empty(t, sink.Path())
}

func TestImageName(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 30, 5, 0, time.FixedZone("X", 3600))

	tests := []struct {
		device string
		want   string
	}{
		{"Band 2", "Band_2-20240301T113005Z.bin"},
		{"ID107:HR/Plus", "ID107_HRPlus-20240301T113005Z.bin"},
		{"", "tracker-20240301T113005Z.bin"},
		{"  ", "tracker-20240301T113005Z.bin"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ImageName(tt.device, at), tt.device)
	}
}

func TestManifest_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "band.bin")
	image := make([]byte, protocol.BlockSize)
	for i := range image {
		image[i] = byte(i)
	}
	require.NoError(t, WriteFileAtomic(imagePath, image, 0o644))

	info := protocol.DataInfo{DataStart: 0, DataEnd: 1, FlashSize: 64}
	m := NewManifest("Band 2", "V1.2.7", info, image)
	path, err := WriteManifest(imagePath, m)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "band.yaml"), path)

	loaded, err := ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "Band 2", loaded.Device)
	assert.Equal(t, "V1.2.7", loaded.Firmware)
	assert.Equal(t, uint16(64), loaded.FlashSize)
	assert.Equal(t, protocol.BlockSize, loaded.Size)
	assert.Equal(t, m.SHA256, loaded.SHA256)
	assert.NoError(t, loaded.Verify(image))

	image[10] ^= 0xff
	assert.Error(t, loaded.Verify(image))
	assert.Error(t, loaded.Verify(image[:10]))
}

func TestReadManifest_Missing(t *testing.T) {
	_, err := ReadManifest(filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}
