package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ErrNoDumpInArchive is returned when a zip archive holds no usable dump entry.
var ErrNoDumpInArchive = errors.New("no sql dump found in archive")

// SizableReaderAt is implemented by inputs that support random access and a size
// query, such as ranged HTTP readers.
type SizableReaderAt interface {
	io.ReaderAt
	Size() (int64, error)
}

// zipEntry streams one archive member and releases everything behind it on Close.
type zipEntry struct {
	io.Reader
	closers []io.Closer
	tempFile string
}

func (z *zipEntry) Close() error {
	var errs []error
	for i := len(z.closers) - 1; i >= 0; i-- {
		if err := z.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if z.tempFile != "" {
		if err := os.Remove(z.tempFile); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newZipReader opens the dump stored in a zip archive. Files and SizableReaderAt
// inputs are read in place; plain streams are spooled to a temp file first since
// the central directory sits at the end of the archive.
func newZipReader(r io.Reader) (io.ReadCloser, error) {
	entry := &zipEntry{}

	var ra io.ReaderAt
	var size int64
	switch v := r.(type) {
	case *os.File:
		info, err := v.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat file: %w", err)
		}
		ra, size = v, info.Size()
	case SizableReaderAt:
		n, err := v.Size()
		if err != nil {
			return nil, fmt.Errorf("failed to get size from reader: %w", err)
		}
		ra, size = v, n
	default:
		tempFile, err := os.CreateTemp("", "dumpconv-zip-*.zip")
		if err != nil {
			return nil, fmt.Errorf("failed to create temp file: %w", err)
		}
		entry.tempFile = tempFile.Name()
		entry.closers = append(entry.closers, tempFile)

		n, err := io.Copy(tempFile, r)
		if err != nil {
			entry.Close()
			return nil, fmt.Errorf("failed to copy stream to temp file: %w", err)
		}
		ra, size = tempFile, n
	}

	archive, err := zip.NewReader(ra, size)
	if err != nil {
		entry.Close()
		return nil, fmt.Errorf("failed to create zip reader: %w", err)
	}

	f, err := pickDump(archive.File)
	if err != nil {
		entry.Close()
		return nil, err
	}
	rc, err := f.Open()
	if err != nil {
		entry.Close()
		return nil, fmt.Errorf("failed to open %s in archive: %w", f.Name, err)
	}
	entry.closers = append(entry.closers, rc)

	// a compressed dump may itself be stored in the archive
	c := DetectCompression(f.Name)
	if c == CompressionZIP {
		entry.Close()
		return nil, fmt.Errorf("nested zip archive %s is not supported", f.Name)
	}
	dec, err := NewReader(rc, c)
	if err != nil {
		entry.Close()
		return nil, err
	}
	entry.closers = append(entry.closers, dec)
	entry.Reader = dec
	return entry, nil
}

// pickDump chooses the archive member to read: the only .sql entry, or the only
// file when the archive holds exactly one.
func pickDump(files []*zip.File) (*zip.File, error) {
	var regular, dumps []*zip.File
	for _, f := range files {
		if f.FileInfo().IsDir() || strings.HasPrefix(path.Base(f.Name), ".") {
			continue
		}
		regular = append(regular, f)
		if strings.EqualFold(path.Ext(TrimCompressionExtension(f.Name)), ".sql") {
			dumps = append(dumps, f)
		}
	}

	switch {
	case len(dumps) == 1:
		return dumps[0], nil
	case len(dumps) > 1:
		return nil, fmt.Errorf("archive holds %d sql dumps (%s, %s, ...), expected one", len(dumps), dumps[0].Name, dumps[1].Name)
	case len(regular) == 1:
		return regular[0], nil
	}
	return nil, ErrNoDumpInArchive
}
