package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

func TestResolve(t *testing.T) {
	s := NewStoreFs(afero.NewMemMapFs())

	ok := map[string]string{
		"a.bin":           "/a.bin",
		"/a.bin":          "/a.bin",
		"//nested/a.bin":  "/nested/a.bin",
		"dir/../a.bin":    "/dir/../a.bin",
		"name with space": "/name with space",
	}
	for in, want := range ok {
		got, err := s.Resolve(in)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", in, err)
		}
		if filepath.ToSlash(got) != want {
			t.Fatalf("Resolve(%q) = %q, want %q", in, got, want)
		}
	}

	for _, in := range []string{"", "/", ".", "a/..", "..", "../etc/passwd", "a/../../b", "/../x"} {
		if _, err := s.Resolve(in); !errors.Is(err, ErrUnsafeName) {
			t.Fatalf("Resolve(%q): expected ErrUnsafeName, got %v", in, err)
		}
	}
}

func TestLength(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := NewStoreFs(fs)

	if _, exists, err := s.Length("/missing"); err != nil || exists {
		t.Fatalf("expected missing artifact, got exists=%v err=%v", exists, err)
	}

	if err := afero.WriteFile(fs, "/part.bin", []byte("12345"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	n, exists, err := s.Length("/part.bin")
	if err != nil || !exists {
		t.Fatalf("expected existing artifact, got exists=%v err=%v", exists, err)
	}
	if n != 5 {
		t.Fatalf("expected length 5, got %d", n)
	}
}

func TestLengthRejectsDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := fs.Mkdir("/sub", 0755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	s := NewStoreFs(fs)

	_, exists, err := s.Length("/sub")
	if !errors.Is(err, ErrNotRegular) {
		t.Fatalf("expected ErrNotRegular, got %v", err)
	}
	if !exists {
		t.Fatal("expected directory to be reported as existing")
	}
}

func TestLengthRejectsDirectoryOnDisk(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "sub"), 0755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	s := NewStore(root)
	path, err := s.Resolve("sub")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if n, _, err := s.Length(path); !errors.Is(err, ErrNotRegular) {
		t.Fatalf("expected ErrNotRegular, got length %d err %v", n, err)
	}
}

func TestLengthRequiresWritableArtifact(t *testing.T) {
	mem := afero.NewMemMapFs()
	if err := afero.WriteFile(mem, "/a.bin", []byte("abc"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	s := NewStoreFs(afero.NewReadOnlyFs(mem))

	if _, _, err := s.Length("/a.bin"); err == nil {
		t.Fatal("expected an error for an artifact that cannot be opened read-write")
	}
}

func TestOpenAppendNeverTruncates(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := NewStoreFs(fs)

	if err := afero.WriteFile(fs, "/a.bin", []byte("abc"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f, err := s.OpenAppend("/a.bin")
	if err != nil {
		t.Fatalf("OpenAppend: %v", err)
	}
	if _, err := f.Write([]byte("def")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := afero.ReadFile(fs, "/a.bin")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "abcdef" {
		t.Fatalf("expected abcdef, got %q", got)
	}
}

func TestOpenAppendCreates(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := NewStoreFs(fs)

	f, err := s.OpenAppend("/new.bin")
	if err != nil {
		t.Fatalf("OpenAppend: %v", err)
	}
	_ = f.Close()
	if _, err := fs.Stat("/new.bin"); err != nil {
		t.Fatalf("expected file to be created: %v", err)
	}
}

func TestNewStoreConfinesToDirectory(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	s := NewStore(root)

	path, err := s.Resolve("inside.bin")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	f, err := s.OpenAppend(path)
	if err != nil {
		t.Fatalf("OpenAppend: %v", err)
	}
	_, _ = f.Write([]byte("data"))
	_ = f.Close()

	data, err := os.ReadFile(filepath.Join(root, "inside.bin"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "data" {
		t.Fatalf("expected data, got %q", data)
	}
}
