/*
 * MIT License
 * Copyright (c) 2023 Mitchell Hashimoto
 * Copyright (c) 2026 Crrow
 */

package asyncfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/crrow/libxev-go/pkg/cxev"
)

func skipUnlessExtLoaded(t *testing.T) {
	t.Helper()
	if !cxev.ExtLibLoaded() {
		t.Skip("extended library (file support) not loaded")
	}
}

func TestRoundTripBinary(t *testing.T) {
	skipUnlessExtLoaded(t)
	path := filepath.Join(t.TempDir(), "bin.dat")
	ctx := context.Background()

	want := []byte("Hello, World!")
	if err := With(ctx, path, "wb", 0, func(o *Opened) error {
		_, err := o.Write(ctx, want)
		return err
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	var got []byte
	if err := With(ctx, path, "rb", 0, func(o *Opened) error {
		var err error
		got, err = o.Read(ctx, -1)
		return err
	}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRoundTripText(t *testing.T) {
	skipUnlessExtLoaded(t)
	path := filepath.Join(t.TempDir(), "text.txt")
	ctx := context.Background()

	want := "🏁💾🏴‍☠️"
	if err := With(ctx, path, "w", 0, func(o *Opened) error {
		_, err := o.WriteString(ctx, want)
		return err
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	var got string
	if err := With(ctx, path, "r", 0, func(o *Opened) error {
		var err error
		got, err = o.ReadString(ctx, -1)
		return err
	}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestAppendAdditivity(t *testing.T) {
	skipUnlessExtLoaded(t)
	path := filepath.Join(t.TempDir(), "append.txt")
	ctx := context.Background()

	if err := With(ctx, path, "w", 0, func(o *Opened) error {
		_, err := o.WriteString(ctx, "Hello")
		return err
	}); err != nil {
		t.Fatal(err)
	}
	if err := With(ctx, path, "a", 0, func(o *Opened) error {
		_, err := o.WriteString(ctx, " World")
		return err
	}); err != nil {
		t.Fatal(err)
	}

	var got string
	if err := With(ctx, path, "r", 0, func(o *Opened) error {
		var err error
		got, err = o.ReadString(ctx, -1)
		return err
	}); err != nil {
		t.Fatal(err)
	}
	if got != "Hello World" {
		t.Errorf("got %q, want %q", got, "Hello World")
	}
}

func TestSeekTellConsistency(t *testing.T) {
	skipUnlessExtLoaded(t)
	path := filepath.Join(t.TempDir(), "seek.txt")
	ctx := context.Background()

	if err := With(ctx, path, "w", 0, func(o *Opened) error {
		_, err := o.WriteString(ctx, "0123456789")
		return err
	}); err != nil {
		t.Fatal(err)
	}

	err := With(ctx, path, "r", 0, func(o *Opened) error {
		got, err := o.ReadString(ctx, 5)
		if err != nil || got != "01234" {
			return fmt.Errorf("read 5: got %q, err %v", got, err)
		}
		pos, _ := o.Tell()
		if pos != 5 {
			return fmt.Errorf("tell after read 5 = %d, want 5", pos)
		}

		if _, err := o.Seek(ctx, 0, io.SeekStart); err != nil {
			return err
		}
		got, err = o.ReadString(ctx, 3)
		if err != nil || got != "012" {
			return fmt.Errorf("read 3: got %q, err %v", got, err)
		}

		np, err := o.Seek(ctx, 2, io.SeekCurrent)
		if err != nil {
			return err
		}
		if np != 5 {
			return fmt.Errorf("seek current+2 = %d, want 5", np)
		}

		np, err = o.Seek(ctx, -3, io.SeekEnd)
		if err != nil {
			return err
		}
		if np != 7 {
			return fmt.Errorf("seek end-3 = %d, want 7", np)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestTruncateSemantics(t *testing.T) {
	skipUnlessExtLoaded(t)
	path := filepath.Join(t.TempDir(), "trunc.txt")
	ctx := context.Background()

	if err := With(ctx, path, "w", 0, func(o *Opened) error {
		_, err := o.WriteString(ctx, "0123456789")
		return err
	}); err != nil {
		t.Fatal(err)
	}

	if err := With(ctx, path, "r+b", 0, func(o *Opened) error {
		return o.Truncate(ctx, 4)
	}); err != nil {
		t.Fatal(err)
	}

	st, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if st.Size() != 4 {
		t.Errorf("size after truncate(4) = %d, want 4", st.Size())
	}

	if err := With(ctx, path, "r+b", 0, func(o *Opened) error {
		return o.Truncate(ctx, 10)
	}); err != nil {
		t.Fatal(err)
	}
	st, err = os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if st.Size() != 10 {
		t.Errorf("size after truncate(10) = %d, want 10", st.Size())
	}
}

func TestLineReconstruction(t *testing.T) {
	skipUnlessExtLoaded(t)
	path := filepath.Join(t.TempDir(), "lines.txt")
	ctx := context.Background()

	var content string
	for i := 0; i < 1000; i++ {
		content += fmt.Sprintf("%d\n", i)
	}
	if err := With(ctx, path, "w", 0, func(o *Opened) error {
		_, err := o.WriteString(ctx, content)
		return err
	}); err != nil {
		t.Fatal(err)
	}

	err := With(ctx, path, "r", 0, func(o *Opened) error {
		it := o.Lines()
		for i := 0; i < 1000; i++ {
			_, line, ok, err := it.Next(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("iteration stopped early at record %d", i)
			}
			want := fmt.Sprintf("%d\n", i)
			if line != want {
				return fmt.Errorf("record %d = %q, want %q", i, line, want)
			}
		}
		_, _, ok, err := it.Next(ctx)
		if err != nil {
			return err
		}
		if ok {
			return errors.New("expected iteration to terminate after 1000 records")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestUTF8BoundarySafety(t *testing.T) {
	skipUnlessExtLoaded(t)
	path := filepath.Join(t.TempDir(), "boundary.txt")
	ctx := context.Background()

	want := "ascii-🏴‍☠️-日本語-🏁-more ascii tail that pushes past a small buffer"

	for _, bufSize := range []int{1, 2, 3, 4, 8, 64} {
		if err := With(ctx, path, "w", bufSize, func(o *Opened) error {
			_, err := o.WriteString(ctx, want)
			return err
		}); err != nil {
			t.Fatalf("bufSize=%d write: %v", bufSize, err)
		}

		var got string
		if err := With(ctx, path, "r", bufSize, func(o *Opened) error {
			var err error
			got, err = o.ReadString(ctx, -1)
			return err
		}); err != nil {
			t.Fatalf("bufSize=%d read: %v", bufSize, err)
		}
		if got != want {
			t.Errorf("bufSize=%d: got %q, want %q", bufSize, got, want)
		}
	}
}

func TestParallelIndependence(t *testing.T) {
	skipUnlessExtLoaded(t)
	dir := t.TempDir()
	ctx := context.Background()

	const n = 8
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			path := filepath.Join(dir, fmt.Sprintf("file-%d.txt", i))
			want := fmt.Sprintf("contents of file %d", i)
			if err := With(ctx, path, "w", 0, func(o *Opened) error {
				_, err := o.WriteString(ctx, want)
				return err
			}); err != nil {
				return err
			}
			return With(ctx, path, "r", 0, func(o *Opened) error {
				got, err := o.ReadString(ctx, -1)
				if err != nil {
					return err
				}
				if got != want {
					return fmt.Errorf("file %d: got %q, want %q", i, got, want)
				}
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestExclusiveCreate(t *testing.T) {
	skipUnlessExtLoaded(t)
	path := filepath.Join(t.TempDir(), "excl.txt")
	ctx := context.Background()

	if err := With(ctx, path, "xb", 0, func(o *Opened) error {
		_, err := o.Write(ctx, []byte("first"))
		return err
	}); err != nil {
		t.Fatalf("first exclusive create: %v", err)
	}

	err := With(ctx, path, "xb", 0, func(o *Opened) error { return nil })
	if !errors.Is(err, ErrFileExists) {
		t.Errorf("second exclusive create: err = %v, want ErrFileExists", err)
	}

	if err := With(ctx, filepath.Join(filepath.Dir(path), "new.txt"), "xb", 0, func(o *Opened) error {
		return nil
	}); err != nil {
		t.Errorf("exclusive create of new path: %v", err)
	}
}

func TestReopenReadWrite(t *testing.T) {
	skipUnlessExtLoaded(t)
	path := filepath.Join(t.TempDir(), "rw.txt")
	ctx := context.Background()

	if err := With(ctx, path, "w", 0, func(o *Opened) error {
		_, err := o.WriteString(ctx, "Initial content")
		return err
	}); err != nil {
		t.Fatal(err)
	}

	err := With(ctx, path, "r+", 0, func(o *Opened) error {
		got, err := o.ReadString(ctx, -1)
		if err != nil {
			return err
		}
		if got != "Initial content" {
			return fmt.Errorf("got %q", got)
		}
		_, err = o.WriteString(ctx, " and more")
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	var got string
	if err := With(ctx, path, "r", 0, func(o *Opened) error {
		var err error
		got, err = o.ReadString(ctx, -1)
		return err
	}); err != nil {
		t.Fatal(err)
	}
	if got != "Initial content and more" {
		t.Errorf("got %q", got)
	}
}

func TestAlreadyClosedIsRejected(t *testing.T) {
	skipUnlessExtLoaded(t)
	path := filepath.Join(t.TempDir(), "closed.txt")
	ctx := context.Background()

	o, err := OpenContext(ctx, path, "wb", 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := o.Close(ctx); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := o.Close(ctx); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
	if _, err := o.Write(ctx, []byte("x")); !errors.Is(err, ErrAlreadyClosed) {
		t.Errorf("write after close: err = %v, want ErrAlreadyClosed", err)
	}
}
