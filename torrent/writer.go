package torrent

import (
	"bufio"
	"fmt"
	"os"
)

// Writer owns the single output file for a download: a pre-sized file
// wrapped in a buffered writer, positioned with an explicit seek before each
// piece since pieces arrive out of order across peers.
type Writer struct {
	file        *os.File
	bw          *bufio.Writer
	pieceLength int64
}

// NewWriter creates (or truncates) the output file at path and pre-sizes it
// to the torrent's total length.
func NewWriter(path string, meta *Metainfo) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("torrent: creating %q: %w", path, err)
	}
	if err := f.Truncate(meta.TotalLength); err != nil {
		f.Close()
		return nil, fmt.Errorf("torrent: sizing %q: %w", path, err)
	}
	return &Writer{file: f, bw: bufio.NewWriter(f), pieceLength: meta.PieceLength}, nil
}

// Run drains pieceCh, seeking to each piece's offset, writing it, and
// flushing before reporting the index on progressTx. It runs until pieceCh
// is closed or total pieces have been written, always closes the output
// file before returning (even on error), and reports how many pieces were
// actually written — callers use this to detect a download that stalled
// short of total.
func (w *Writer) Run(pieceCh <-chan PieceData, total int, progressTx chan<- int) (int, error) {
	written := 0
	for written < total {
		pd, ok := <-pieceCh
		if !ok {
			break
		}
		if pd.Index < 0 || pd.Index >= total {
			w.file.Close()
			return written, fmt.Errorf("torrent: invalid piece index %d", pd.Index)
		}

		offset := int64(pd.Index) * w.pieceLength
		if _, err := w.file.Seek(offset, 0); err != nil {
			w.file.Close()
			return written, fmt.Errorf("torrent: seeking to piece %d: %w", pd.Index, err)
		}
		if _, err := w.bw.Write(pd.Bytes); err != nil {
			w.file.Close()
			return written, fmt.Errorf("torrent: writing piece %d: %w", pd.Index, err)
		}
		if err := w.bw.Flush(); err != nil {
			w.file.Close()
			return written, fmt.Errorf("torrent: flushing piece %d: %w", pd.Index, err)
		}

		written++
		if progressTx != nil {
			progressTx <- pd.Index
		}
	}
	return written, w.file.Close()
}
