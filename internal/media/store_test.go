package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

func TestDiskStoreSave(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		wantMIME string
		wantExt  string
		wantErr  error
	}{
		{name: "png", data: pngHeader, wantMIME: "image/png", wantExt: ".png"},
		{name: "jpeg", data: []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01"), wantMIME: "image/jpeg", wantExt: ".jpg"},
		{name: "gif", data: []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00"), wantMIME: "image/gif", wantExt: ".gif"},
		{name: "text rejected", data: []byte("just some words"), wantErr: ErrUnsupportedType},
		{name: "empty", data: nil, wantErr: ErrEmpty},
		{name: "too large", data: append(append([]byte{}, pngHeader...), make([]byte, 128)...), wantErr: ErrTooLarge},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, err := NewDiskStore(t.TempDir(), 100)
			if err != nil {
				t.Fatal(err)
			}

			stored, err := store.Save(context.Background(), bytes.NewReader(tc.data))
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Save: %v", err)
			}
			if stored.MIME != tc.wantMIME || !strings.HasSuffix(stored.Name, tc.wantExt) {
				t.Fatalf("unexpected stored file %+v", stored)
			}
			if stored.URL != URLPrefix+stored.Name || stored.Size != int64(len(tc.data)) {
				t.Fatalf("unexpected url or size %+v", stored)
			}

			f, mime, err := store.Open(stored.Name)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer f.Close()
			got, _ := io.ReadAll(f)
			if !bytes.Equal(got, tc.data) || mime != tc.wantMIME {
				t.Fatalf("round trip mismatch (mime %s)", mime)
			}
		})
	}
}

func TestDiskStoreOpenRejectsForeignNames(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), 1024)
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{
		"../secret.png",
		"notes.txt",
		"3f1c6a3e-5d2b-4b8e-9a55-1f0f0f0f0f0f.exe",
		"3f1c6a3e-5d2b-4b8e-9a55-1f0f0f0f0f0f.png",
	} {
		if _, _, err := store.Open(name); !errors.Is(err, ErrNotFound) {
			t.Errorf("Open(%q): expected ErrNotFound, got %v", name, err)
		}
	}
}

func TestDiskStoreRemove(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), 1024)
	if err != nil {
		t.Fatal(err)
	}
	stored, err := store.Save(context.Background(), bytes.NewReader(pngHeader))
	if err != nil {
		t.Fatal(err)
	}

	if err := store.Remove(stored.Name); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, _, err := store.Open(stored.Name); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after Remove, got %v", err)
	}
	if err := store.Remove(stored.Name); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
	if err := store.Remove("../secret.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign name, got %v", err)
	}
}
