package filesystem

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"csvsplit/pkg/contract"
)

func writeInput(t *testing.T, body string) contract.FileID {
	t.Helper()
	p := filepath.Join(t.TempDir(), "in.csv")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return contract.FileID(p)
}

// TestStat 存在的常规文件返回大小
func TestStat(t *testing.T) {
	id := writeInput(t, "id\n1\n")
	r := New(nil)
	n, err := r.Stat(context.Background(), id)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if n != 5 {
		t.Fatalf("size = %d", n)
	}
}

// TestStatNotFound 不存在与目录均归为 ErrInputNotFound
func TestStatNotFound(t *testing.T) {
	r := New(nil)
	dir := t.TempDir()
	if _, err := r.Stat(context.Background(), contract.FileID(filepath.Join(dir, "missing.csv"))); !errors.Is(err, contract.ErrInputNotFound) {
		t.Fatalf("missing: want ErrInputNotFound, got %v", err)
	}
	if _, err := r.Stat(context.Background(), contract.FileID(dir)); !errors.Is(err, contract.ErrInputNotFound) {
		t.Fatalf("dir: want ErrInputNotFound, got %v", err)
	}
}

// TestOpenAt 独立句柄、定位正确、互不影响
func TestOpenAt(t *testing.T) {
	id := writeInput(t, "0123456789")
	r := New(&Options{BufSize: 16})

	a, err := r.OpenAt(context.Background(), id, 3)
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	defer a.Close()
	b, err := r.OpenAt(context.Background(), id, 7)
	if err != nil {
		t.Fatalf("open b: %v", err)
	}
	defer b.Close()

	buf := make([]byte, 2)
	if _, err := io.ReadFull(a, buf); err != nil || string(buf) != "34" {
		t.Fatalf("a read %q %v", buf, err)
	}
	if _, err := io.ReadFull(b, buf); err != nil || string(buf) != "78" {
		t.Fatalf("b read %q %v", buf, err)
	}
	if _, err := io.ReadFull(a, buf); err != nil || string(buf) != "56" {
		t.Fatalf("a second read %q %v", buf, err)
	}
}

func TestOpenFromStart(t *testing.T) {
	id := writeInput(t, "abc")
	rc, err := New(nil).Open(context.Background(), id)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	if string(b) != "abc" {
		t.Fatalf("got %q", b)
	}
}

func TestOpenAtErrors(t *testing.T) {
	r := New(nil)
	if _, err := r.OpenAt(context.Background(), "nope.csv", 0); !errors.Is(err, contract.ErrInputNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
	id := writeInput(t, "x")
	if _, err := r.OpenAt(context.Background(), id, -1); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("want invalid, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.OpenAt(ctx, id, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("want canceled, got %v", err)
	}
	if _, err := r.Stat(ctx, id); !errors.Is(err, context.Canceled) {
		t.Fatalf("stat want canceled, got %v", err)
	}
}
