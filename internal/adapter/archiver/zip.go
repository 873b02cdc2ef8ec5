package archiver

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/semmidev/dumpgram/internal/domain"
)

// ZipPackager bundles files into a deflate-compressed zip archive.
type ZipPackager struct {
	level int
}

func NewZip() *ZipPackager {
	return &ZipPackager{level: flate.BestCompression}
}

// Package writes every source file into destPath under its base name.
// The archive is assembled next to destPath and renamed into place, so a
// failure never leaves a half-written archive at destPath.
func (z *ZipPackager) Package(sourcePaths []string, destPath string) (err error) {
	if len(sourcePaths) == 0 {
		return fmt.Errorf("%w: no files to package", domain.ErrPackaging)
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), "."+filepath.Base(destPath)+".*")
	if err != nil {
		return fmt.Errorf("failed to create archive: %w: %w", domain.ErrPackaging, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	zw := zip.NewWriter(tmp)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, z.level)
	})

	seen := make(map[string]bool, len(sourcePaths))
	for _, src := range sourcePaths {
		name := filepath.Base(src)
		if seen[name] {
			return fmt.Errorf("%w: duplicate entry %s", domain.ErrPackaging, name)
		}
		seen[name] = true

		if err := addFile(zw, src, name); err != nil {
			return fmt.Errorf("failed to add %s: %w: %w", name, domain.ErrPackaging, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w: %w", domain.ErrPackaging, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close archive: %w: %w", domain.ErrPackaging, err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to chmod archive: %w: %w", domain.ErrPackaging, err)
	}
	if err := os.Rename(tmp.Name(), destPath); err != nil {
		return fmt.Errorf("failed to move archive into place: %w: %w", domain.ErrPackaging, err)
	}

	return nil
}

func addFile(zw *zip.Writer, src, name string) error {
	file, err := os.Open(src)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	_, err = io.Copy(w, file)
	return err
}

// Entries lists the entry names stored in an archive, in archive order.
func (z *ZipPackager) Entries(archivePath string) ([]string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer r.Close()

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	return names, nil
}
