// Package zip bundles in-memory files into a single archive.
package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"time"
)

type Entry struct {
	Filename string
	Data     []byte
}

// Write streams entries into w. Image payloads are already compressed, so
// entries are stored rather than deflated.
func Write(w io.Writer, entries []Entry, modified time.Time) error {
	zw := zip.NewWriter(w)
	for _, entry := range entries {
		hdr := &zip.FileHeader{
			Name:     entry.Filename,
			Method:   zip.Store,
			Modified: modified,
		}
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("zip: create %s: %w", entry.Filename, err)
		}
		if _, err := fw.Write(entry.Data); err != nil {
			return fmt.Errorf("zip: write %s: %w", entry.Filename, err)
		}
	}
	return zw.Close()
}

// Archive returns the archive bytes for entries.
func Archive(entries []Entry) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := Write(buf, entries, time.Now()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
