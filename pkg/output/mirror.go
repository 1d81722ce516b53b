package output

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/yumyai/seqst/pkg/seq"
)

var ErrNotFound = errors.New("structure file not found")

// Fetcher opens the mmCIF file of one structure.
type Fetcher interface {
	Fetch(ctx context.Context, src seq.Source, id string) (io.ReadCloser, error)
}

// MirrorFetcher reads structure files from a local mirror laid out as
// <Dir>/<source>/<id>.cif, optionally gzipped as <id>.cif.gz.
type MirrorFetcher struct {
	Dir string
}

func (m MirrorFetcher) Fetch(ctx context.Context, src seq.Source, id string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if src == seq.SourceNone || id == "" || safeName(id) != id || safeName(string(src)) != string(src) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, src, id)
	}

	base := filepath.Join(m.Dir, string(src))
	for _, name := range candidateNames(id) {
		f, err := os.Open(filepath.Join(base, name+StructureExt))
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}

		gz, err := os.Open(filepath.Join(base, name+StructureExt+".gz"))
		if err == nil {
			return newGzipFile(gz)
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, src, id)
}

// PDB mirrors usually store lower-case ids.
func candidateNames(id string) []string {
	if lower := strings.ToLower(id); lower != id {
		return []string{id, lower}
	}
	return []string{id}
}

type gzipFile struct {
	*gzip.Reader
	f *os.File
}

func newGzipFile(f *os.File) (io.ReadCloser, error) {
	zr, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read %s: %w", f.Name(), err)
	}
	return &gzipFile{Reader: zr, f: f}, nil
}

func (g *gzipFile) Close() error {
	return errors.Join(g.Reader.Close(), g.f.Close())
}
