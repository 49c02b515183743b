package report

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/wardline/internal/blob"
	"github.com/gosuda/wardline/internal/domain"
)

// ArchivePart is one zip file ready for upload.
type ArchivePart struct {
	Path     string
	Filename string
	Size     int64
}

// Packager zips the report CSV, and optionally its photos, into one or more
// parts. A part is closed once its entries reach maxPartBytes of
// uncompressed data, so a single large photo may overshoot the cap.
type Packager struct {
	photos       blob.Store
	maxPartBytes int64
}

func NewPackager(photos blob.Store, maxPartBytes int64) *Packager {
	return &Packager{photos: photos, maxPartBytes: maxPartBytes}
}

// PartFilename names part n (1-based) of an archive.
func PartFilename(baseName string, n int) string {
	if n <= 1 {
		return baseName + ".zip"
	}
	return baseName + "_part" + strconv.Itoa(n) + ".zip"
}

// Package writes parts into dir. The CSV is always the first entry of part 1.
// Photos whose blob is missing are skipped.
func (p *Packager) Package(ctx context.Context, dir, baseName, csvPath string, photos []*domain.AuditAttachment) ([]ArchivePart, error) {
	pw := &partWriter{dir: dir, baseName: baseName}
	defer pw.abort()

	if err := pw.next(); err != nil {
		return nil, err
	}

	if err := pw.addFile(baseName+".csv", csvPath); err != nil {
		return nil, err
	}

	for _, photo := range photos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if p.maxPartBytes > 0 && pw.written >= p.maxPartBytes {
			if err := pw.next(); err != nil {
				return nil, err
			}
		}

		err := p.addPhoto(ctx, pw, photo)
		if errors.Is(err, blob.ErrObjectNotFound) {
			log.Warn().
				Str("tenant_id", photo.TenantID.String()).
				Str("attachment_id", photo.ID.String()).
				Msg("report.Packager: photo blob missing, skipped")
			continue
		}
		if err != nil {
			return nil, err
		}
	}

	return pw.finish()
}

func (p *Packager) addPhoto(ctx context.Context, pw *partWriter, photo *domain.AuditAttachment) error {
	r, err := p.photos.Get(ctx, photo.BlobPath())
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	name := "photos/" + photo.UpdateID.String() + "/" + domain.SafeFileName(photo.OriginalFilename)
	return pw.addReader(name, r)
}

type partWriter struct {
	dir      string
	baseName string

	parts   []ArchivePart
	file    *os.File
	zw      *zip.Writer
	written int64
}

func (w *partWriter) next() error {
	if err := w.closeCurrent(); err != nil {
		return err
	}

	filename := PartFilename(w.baseName, len(w.parts)+1)
	path := filepath.Join(w.dir, filename)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create part: %w", err)
	}

	w.parts = append(w.parts, ArchivePart{Path: path, Filename: filename})
	w.file = f
	w.zw = zip.NewWriter(f)
	w.written = 0
	return nil
}

func (w *partWriter) addFile(name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	return w.addReader(name, f)
}

func (w *partWriter) addReader(name string, r io.Reader) error {
	entry, err := w.zw.Create(name)
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	n, err := io.Copy(entry, r)
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	w.written += n
	return nil
}

func (w *partWriter) closeCurrent() error {
	if w.file == nil {
		return nil
	}

	zerr := w.zw.Close()
	ferr := w.file.Close()
	w.file, w.zw = nil, nil
	if zerr != nil {
		return fmt.Errorf("close zip: %w", zerr)
	}
	if ferr != nil {
		return fmt.Errorf("close part: %w", ferr)
	}

	last := &w.parts[len(w.parts)-1]
	info, err := os.Stat(last.Path)
	if err != nil {
		return fmt.Errorf("stat part: %w", err)
	}
	last.Size = info.Size()
	return nil
}

func (w *partWriter) finish() ([]ArchivePart, error) {
	if err := w.closeCurrent(); err != nil {
		return nil, err
	}
	parts := w.parts
	w.parts = nil
	return parts, nil
}

// abort releases an unfinished part. Files stay in dir for the caller to remove.
func (w *partWriter) abort() {
	if w.file != nil {
		_ = w.file.Close()
		w.file, w.zw = nil, nil
	}
}
