package torrent

import "sync"

// PiecePool is the shared registry of not-yet-downloaded pieces. A piece is
// present in the pool iff no worker currently holds it in flight and it has
// not yet been written; Claim and Release are the only ways pieces move in
// and out, and each is atomic under the pool's mutex.
type PiecePool struct {
	mu     sync.Mutex
	pieces map[int]PieceDescriptor
}

// NewPiecePool builds a pool holding every piece described by the given
// metainfo.
func NewPiecePool(meta *Metainfo) *PiecePool {
	pieces := make(map[int]PieceDescriptor, meta.NumPieces())
	for i := 0; i < meta.NumPieces(); i++ {
		pieces[i] = PieceDescriptor{
			Index:        i,
			Length:       int(pieceLength(i, meta.NumPieces(), meta.PieceLength, meta.TotalLength)),
			ExpectedHash: meta.PieceHashes[i],
		}
	}
	return &PiecePool{pieces: pieces}
}

// Claim atomically removes and returns the descriptor for piece i, if it is
// still in the pool. The zero value and false are returned if it is not
// (already claimed by another worker, or already written).
func (p *PiecePool) Claim(i int) (PieceDescriptor, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.pieces[i]
	if ok {
		delete(p.pieces, i)
	}
	return d, ok
}

// Release re-inserts a descriptor after a failed download attempt, making it
// available for another worker to claim.
func (p *PiecePool) Release(d PieceDescriptor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pieces[d.Index] = d
}

// Remaining reports how many pieces are still unclaimed and unwritten.
func (p *PiecePool) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pieces)
}
