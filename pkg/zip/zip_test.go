package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
)

func TestArchive(t *testing.T) {
	data, err := Archive([]Entry{
		{Filename: "a.webp", Data: []byte("first")},
		{Filename: "b.webp", Data: []byte("second")},
	})
	if err != nil {
		t.Fatalf("Archive returned error: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if len(zr.File) != 2 || zr.File[0].Name != "a.webp" || zr.File[1].Name != "b.webp" {
		t.Fatalf("unexpected entries: %+v", zr.File)
	}
	rc, err := zr.File[1].Open()
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "second" {
		t.Fatalf("entry body = %q", body)
	}
}
