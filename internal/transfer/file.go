package transfer

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// File is an outbound file: a name, an exact size and the bytes to stream.
type File struct {
	Name   string
	Size   uint64
	Source io.Reader
	// Checksum is the hex BLAKE3-256 of the content; empty disables verification.
	Checksum string
}

// Received is a completed inbound file.
type Received struct {
	Request
	Data []byte
}

func NewFileFromBytes(name string, data []byte) File {
	return File{
		Name:     name,
		Size:     uint64(len(data)),
		Source:   bytes.NewReader(data),
		Checksum: Checksum(data),
	}
}

// OpenFile hashes the file at path and returns it rewound for streaming.
// The caller closes the returned *os.File.
func OpenFile(path string) (File, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, nil, fmt.Errorf("open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return File{}, nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		f.Close()
		return File{}, nil, errors.New("source path must be a file")
	}
	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		f.Close()
		return File{}, nil, fmt.Errorf("hash %s: %w", path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return File{}, nil, fmt.Errorf("rewind %s: %w", path, err)
	}
	return File{
		Name:     filepath.Base(path),
		Size:     uint64(info.Size()),
		Source:   f,
		Checksum: hex.EncodeToString(h.Sum(nil)),
	}, f, nil
}

func Checksum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SafeName reduces an announced name to a plain file name.
func SafeName(name string) string {
	base := filepath.Base(filepath.Clean("/" + filepath.ToSlash(name)))
	if base == "/" || base == "." || base == ".." || base == "" {
		return "download"
	}
	return base
}

// ChunkCount is the number of binary messages a file of size bytes takes.
func ChunkCount(size uint64, chunkSize int) uint64 {
	if size == 0 || chunkSize <= 0 {
		return 0
	}
	cs := uint64(chunkSize)
	return (size + cs - 1) / cs
}
