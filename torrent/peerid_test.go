package torrent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGeneratePeerIDHasFixedPrefix(t *testing.T) {
	id, err := GeneratePeerID()
	require.NoError(t, err)
	require.Equal(t, peerIDPrefix, string(id[:len(peerIDPrefix)]))
	require.Len(t, id, 20)
}

func TestGeneratePeerIDSuffixIsLowercaseAlpha(t *testing.T) {
	id, err := GeneratePeerID()
	require.NoError(t, err)
	for _, b := range id[len(peerIDPrefix):] {
		require.Contains(t, lowercaseAlphabet, string(b))
	}
}

func TestGeneratePeerIDIsRandomAcrossCalls(t *testing.T) {
	a, err := GeneratePeerID()
	require.NoError(t, err)
	b, err := GeneratePeerID()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
