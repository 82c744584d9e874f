package archive

import (
	"archive/tar"
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Format is an archive container/compression pair.
type Format int

const (
	FormatZip Format = iota
	FormatTar
	FormatTarGz
	FormatTarZstd
	FormatTarLz4
)

func (f Format) String() string {
	switch f {
	case FormatZip:
		return "zip"
	case FormatTar:
		return "tar"
	case FormatTarGz:
		return "tar.gz"
	case FormatTarZstd:
		return "tar.zst"
	case FormatTarLz4:
		return "tar.lz4"
	default:
		return "unknown"
	}
}

// DetectFormat picks a format from the file extension. Anything
// unrecognized is read as zip.
func DetectFormat(path string) Format {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGz
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tzst"):
		return FormatTarZstd
	case strings.HasSuffix(lower, ".tar.lz4"):
		return FormatTarLz4
	case strings.HasSuffix(lower, ".tar"):
		return FormatTar
	default:
		return FormatZip
	}
}

type entryKind int

const (
	kindFile entryKind = iota
	kindDir
	kindOther // links, devices, fifos
)

type entry struct {
	name string
	kind entryKind
	size int64
	open func() (io.ReadCloser, error)
}

// entryReader yields entries in archive order and io.EOF at the end.
type entryReader interface {
	next() (*entry, error)
	Close() error
}

func openEntries(path string, format Format) (entryReader, error) {
	if format == FormatZip {
		zr, err := zip.OpenReader(path)
		if err != nil {
			return nil, err
		}
		return &zipEntries{zr: zr}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, closeFn, err := decompress(bufio.NewReaderSize(f, 64*1024), format)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &tarEntries{tr: tar.NewReader(r), closers: []func() error{closeFn, f.Close}}, nil
}

func decompress(r io.Reader, format Format) (io.Reader, func() error, error) {
	nop := func() error { return nil }
	switch format {
	case FormatTar:
		return r, nop, nil
	case FormatTarGz:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return gz, gz.Close, nil
	case FormatTarZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return dec, func() error { dec.Close(); return nil }, nil
	case FormatTarLz4:
		return lz4.NewReader(r), nop, nil
	default:
		return nil, nil, fmt.Errorf("unsupported archive format %s", format)
	}
}

type zipEntries struct {
	zr  *zip.ReadCloser
	pos int
}

func (z *zipEntries) next() (*entry, error) {
	if z.pos >= len(z.zr.File) {
		return nil, io.EOF
	}
	f := z.zr.File[z.pos]
	z.pos++

	e := &entry{name: f.Name, size: int64(f.UncompressedSize64), open: f.Open}
	mode := f.Mode()
	switch {
	case mode.IsDir() || strings.HasSuffix(f.Name, "/"):
		e.kind = kindDir
	case mode.IsRegular():
		e.kind = kindFile
	default:
		e.kind = kindOther
	}
	return e, nil
}

func (z *zipEntries) Close() error { return z.zr.Close() }

type tarEntries struct {
	tr      *tar.Reader
	closers []func() error
}

func (t *tarEntries) next() (*entry, error) {
	hdr, err := t.tr.Next()
	if err != nil {
		return nil, err
	}
	e := &entry{
		name: hdr.Name,
		size: hdr.Size,
		open: func() (io.ReadCloser, error) { return io.NopCloser(t.tr), nil },
	}
	switch hdr.Typeflag {
	case tar.TypeDir:
		e.kind = kindDir
	case tar.TypeReg:
		e.kind = kindFile
	default:
		e.kind = kindOther
	}
	return e, nil
}

func (t *tarEntries) Close() error {
	var errs []error
	for _, c := range t.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// scanTotal sums the declared uncompressed sizes of the regular file
// entries. For zip only the central directory is read.
func scanTotal(path string, format Format) (int64, error) {
	entries, err := openEntries(path, format)
	if err != nil {
		return 0, err
	}
	defer entries.Close()

	var total int64
	for {
		e, err := entries.next()
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return 0, err
		}
		if e.kind == kindFile && e.size > 0 {
			total += e.size
		}
	}
}
