package piece

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// fileName is the on-disk name for a single verified piece, grounded in
// original_source/src/storage/store.rs's "piece{index}-{name}" convention.
func fileName(dir, torrentName string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("piece%d-%s", index, torrentName))
}

// WritePiece persists a verified piece's bytes under dir.
func WritePiece(dir, torrentName string, index int, data []byte) error {
	return os.WriteFile(fileName(dir, torrentName, index), data, 0o644)
}

// Reassemble concatenates every per-piece file under dir into the final
// output file at dir/torrentName, seeking each piece to its offset so
// pieces may be assembled out of order (original_source/src/storage/store.rs
// Store::store_file).
func Reassemble(dir, torrentName string, length int64, numPieces int, pieceLength int64) error {
	out, err := os.Create(filepath.Join(dir, torrentName))
	if err != nil {
		return fmt.Errorf("piece: create output file: %w", err)
	}
	defer out.Close()

	if err := out.Truncate(length); err != nil {
		return fmt.Errorf("piece: truncate output file: %w", err)
	}

	for i := 0; i < numPieces; i++ {
		in, err := os.Open(fileName(dir, torrentName, i))
		if err != nil {
			return fmt.Errorf("piece: open piece file %d: %w", i, err)
		}
		buf, err := io.ReadAll(in)
		in.Close()
		if err != nil {
			return fmt.Errorf("piece: read piece file %d: %w", i, err)
		}

		offset := int64(i) * pieceLength
		if _, err := out.WriteAt(buf, offset); err != nil {
			return fmt.Errorf("piece: write piece %d at offset %d: %w", i, offset, err)
		}
	}
	return nil
}

// RemovePieceFiles deletes the per-piece temporary files under dir once
// reassembly has completed.
func RemovePieceFiles(dir, torrentName string, numPieces int) error {
	for i := 0; i < numPieces; i++ {
		if err := os.Remove(fileName(dir, torrentName, i)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("piece: remove piece file %d: %w", i, err)
		}
	}
	return nil
}
