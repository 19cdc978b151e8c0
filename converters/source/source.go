// Package source opens dump files as forward-only byte streams, transparently
// decompressing them based on the path suffix.
package source

import (
	"compress/bzip2"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Compression identifies the codec wrapping a dump file.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGZ
	CompressionBZ2
	CompressionXZ
	CompressionZSTD
	CompressionZIP
)

const (
	extGZ   = ".gz"
	extBZ2  = ".bz2"
	extXZ   = ".xz"
	extZSTD = ".zst"
	extZIP  = ".zip"
)

func (c Compression) String() string {
	switch c {
	case CompressionGZ:
		return "gz"
	case CompressionBZ2:
		return "bz2"
	case CompressionXZ:
		return "xz"
	case CompressionZSTD:
		return "zstd"
	case CompressionZIP:
		return "zip"
	default:
		return "none"
	}
}

// Extension returns the file suffix for the compression type.
func (c Compression) Extension() string {
	switch c {
	case CompressionGZ:
		return extGZ
	case CompressionBZ2:
		return extBZ2
	case CompressionXZ:
		return extXZ
	case CompressionZSTD:
		return extZSTD
	case CompressionZIP:
		return extZIP
	default:
		return ""
	}
}

// DetectCompression detects the compression type from a file path.
func DetectCompression(path string) Compression {
	path = strings.ToLower(path)

	switch {
	case strings.HasSuffix(path, extGZ):
		return CompressionGZ
	case strings.HasSuffix(path, extBZ2):
		return CompressionBZ2
	case strings.HasSuffix(path, extXZ):
		return CompressionXZ
	case strings.HasSuffix(path, extZSTD):
		return CompressionZSTD
	case strings.HasSuffix(path, extZIP):
		return CompressionZIP
	default:
		return CompressionNone
	}
}

// TrimCompressionExtension removes a compression suffix from path, if present.
func TrimCompressionExtension(path string) string {
	if ext := DetectCompression(path).Extension(); ext != "" {
		return path[:len(path)-len(ext)]
	}
	return path
}

// NewReader wraps r with a decompressor for c. The returned closer releases the
// decompressor only; r is left open. For CompressionZIP the archive must hold a
// single dump, which may itself be compressed.
func NewReader(r io.Reader, c Compression) (io.ReadCloser, error) {
	switch c {
	case CompressionNone:
		return io.NopCloser(r), nil

	case CompressionGZ:
		gzReader, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return gzReader, nil

	case CompressionBZ2:
		return io.NopCloser(bzip2.NewReader(r)), nil

	case CompressionXZ:
		xzReader, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create xz reader: %w", err)
		}
		return io.NopCloser(xzReader), nil

	case CompressionZSTD:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		return decoder.IOReadCloser(), nil

	case CompressionZIP:
		return newZipReader(r)

	default:
		return nil, fmt.Errorf("unsupported compression type: %v", c)
	}
}

// File is an open dump: the decompressed stream plus the underlying file.
type File struct {
	io.Reader
	Path        string
	Compression Compression

	file   *os.File
	closer io.Closer
}

// Open opens the dump at path and returns its decompressed byte stream.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}

	c := DetectCompression(path)
	rc, err := NewReader(f, c)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	return &File{
		Reader:      rc,
		Path:        path,
		Compression: c,
		file:        f,
		closer:      rc,
	}, nil
}

// Size returns the size of the file on disk (compressed size for compressed dumps).
func (f *File) Size() (int64, error) {
	stat, err := f.file.Stat()
	if err != nil {
		return 0, err
	}
	return stat.Size(), nil
}

// Close releases the decompressor and the file.
func (f *File) Close() error {
	var cleanupErr error
	if f.closer != nil {
		cleanupErr = f.closer.Close()
	}
	if closeErr := f.file.Close(); closeErr != nil && cleanupErr == nil {
		cleanupErr = closeErr
	}
	return cleanupErr
}
