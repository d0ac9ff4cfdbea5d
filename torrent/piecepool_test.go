package torrent

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPiecePoolClaimRelease(t *testing.T) {
	meta := &Metainfo{
		PieceLength: 4,
		TotalLength: 8,
		PieceHashes: [][20]byte{{1}, {2}},
	}
	pool := NewPiecePool(meta)
	require.Equal(t, 2, pool.Remaining())

	desc, ok := pool.Claim(0)
	require.True(t, ok)
	require.Equal(t, 0, desc.Index)
	require.Equal(t, 1, pool.Remaining())

	_, ok = pool.Claim(0)
	require.False(t, ok, "a claimed piece cannot be claimed again")

	pool.Release(desc)
	require.Equal(t, 2, pool.Remaining())

	_, ok = pool.Claim(99)
	require.False(t, ok, "an unknown index cannot be claimed")
}

func TestPiecePoolConcurrentClaimsAreExclusive(t *testing.T) {
	meta := &Metainfo{
		PieceLength: 4,
		TotalLength: 400,
		PieceHashes: make([][20]byte, 100),
	}
	pool := NewPiecePool(meta)

	var mu sync.Mutex
	claimed := make(map[int]int)
	var wg sync.WaitGroup
	for w := 0; w < 10; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if desc, ok := pool.Claim(i); ok {
					mu.Lock()
					claimed[desc.Index]++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 0, pool.Remaining())
	require.Len(t, claimed, 100)
	for idx, count := range claimed {
		require.Equal(t, 1, count, "piece %d was claimed more than once", idx)
	}
}
