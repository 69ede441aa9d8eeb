package weights

import (
	"bytes"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

func gzipText(t *testing.T, s string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return &buf
}

func fakeWeightsText(blocks int) string {
	var lines []string
	lines = append(lines, "1")
	tensors := tensorsPerBlock + blocks*2*tensorsPerBlock + (tensorsPerBlock + 2) + (tensorsPerBlock + 4)
	for i := 0; i < tensors; i++ {
		lines = append(lines, "0.1 0.2 0.3")
	}
	return strings.Join(lines, "\n") + "\n"
}

func TestLoadReaderInfersResidualBlocks(t *testing.T) {
	buf := gzipText(t, fakeWeightsText(6))
	w, err := LoadReader(buf, 128, 1858)
	require.NoError(t, err)
	require.Equal(t, 1, w.Version)
	require.Equal(t, 6, w.Shape.ResidualBlocks)
	require.True(t, w.Shape.IsValid())
}

func TestLoadReaderRejectsEmpty(t *testing.T) {
	buf := gzipText(t, "")
	_, err := LoadReader(buf, 128, 1858)
	require.Error(t, err)
}

func TestLoadReaderRejectsBadBlockCount(t *testing.T) {
	buf := gzipText(t, "1\n0.1\n0.2\n")
	_, err := LoadReader(buf, 128, 1858)
	require.Error(t, err)
}
