// Package archive bundles per-node files and reports into combined zip
// archives, kept in memory or written to a fixed path per archive kind.
package archive

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/f9-o/sensorhub/pkg/errs"
)

// DefaultThresholdMB is the estimated size at or above which archives go to disk.
const DefaultThresholdMB = 100.0

// KeepInMemory reports whether an archive of totalMB should be materialised in
// memory. The comparison is strict: exactly thresholdMB goes to disk.
func KeepInMemory(totalMB, thresholdMB float64) bool {
	return totalMB < thresholdMB
}

// BuildZip writes one entry per (name, blob) pair to w. Names are used
// verbatim; duplicates are written as separate entries.
func BuildZip(w io.Writer, names []string, blobs [][]byte) error {
	if len(names) != len(blobs) {
		return errs.Newf(errs.ErrArchiveMismatch, "archive.zip", "%d names for %d blobs", len(names), len(blobs))
	}
	zw := zip.NewWriter(w)
	for i, name := range names {
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: time.Now(),
		})
		if err != nil {
			return errs.Wrap(err, errs.ErrArchiveGeneration, "archive.zip").WithNode(name)
		}
		if _, err := fw.Write(blobs[i]); err != nil {
			return errs.Wrap(err, errs.ErrArchiveGeneration, "archive.zip").WithNode(name)
		}
	}
	if err := zw.Close(); err != nil {
		return errs.Wrap(err, errs.ErrArchiveGeneration, "archive.zip")
	}
	return nil
}

// Zip builds the archive in memory.
func Zip(names []string, blobs [][]byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := BuildZip(&buf, names, blobs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteZip builds the archive at path. The file is written next to path and
// renamed into place, so readers never see a partial archive.
func WriteZip(path string, names []string, blobs [][]byte) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return 0, errs.Wrap(err, errs.ErrArchiveGeneration, "archive.write").WithNode(path)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, errs.Wrap(err, errs.ErrArchiveGeneration, "archive.write").WithNode(path)
	}
	defer os.Remove(tmp.Name())

	if err := BuildZip(tmp, names, blobs); err != nil {
		tmp.Close()
		return 0, err
	}
	info, err := tmp.Stat()
	if err != nil {
		tmp.Close()
		return 0, errs.Wrap(err, errs.ErrArchiveGeneration, "archive.write").WithNode(path)
	}
	if err := tmp.Close(); err != nil {
		return 0, errs.Wrap(err, errs.ErrArchiveGeneration, "archive.write").WithNode(path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, errs.Wrap(err, errs.ErrArchiveGeneration, "archive.write").WithNode(path)
	}
	return info.Size(), nil
}
