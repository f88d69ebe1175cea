package worker

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"testing"
	"time"
)

type memWriter struct {
	buf    bytes.Buffer
	closed bool
}

func (w *memWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }
func (w *memWriter) Close() error                { w.closed = true; return nil }

type failingWriter struct{ closed bool }

func (w *failingWriter) Write(p []byte) (int, error) { return 0, errors.New("disk full") }
func (w *failingWriter) Close() error                { w.closed = true; return nil }

func TestPoolWritesPNG(t *testing.T) {
	p := New(1)
	defer p.Close()

	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	dst := &memWriter{}
	done := make(chan error, 1)

	if ok := p.Submit(img, dst, "out.png", func(name string, err error) {
		if name != "out.png" {
			t.Errorf("Expected name out.png, got %q", name)
		}
		done <- err
	}); !ok {
		t.Fatal("Submit should succeed on an idle pool")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Save job failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for save job")
	}

	decoded, err := png.Decode(&dst.buf)
	if err != nil {
		t.Fatalf("Written data is not valid PNG: %v", err)
	}
	if decoded.Bounds().Dx() != 8 || decoded.Bounds().Dy() != 6 {
		t.Errorf("Expected 8x6 image, got %v", decoded.Bounds())
	}
	if !dst.closed {
		t.Error("Writer should be closed after a successful job")
	}
}

func TestPoolPropagatesWriteError(t *testing.T) {
	p := New(1)
	defer p.Close()

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	dst := &failingWriter{}
	done := make(chan error, 1)

	if ok := p.Submit(img, dst, "bad.png", func(_ string, err error) { done <- err }); !ok {
		t.Fatal("Submit should succeed on an idle pool")
	}

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Expected write error to propagate")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for save job")
	}
	if !dst.closed {
		t.Error("Writer should be closed even when the write fails")
	}
}

func TestPoolSubmitDropWhenBusy(t *testing.T) {
	p := New(1)
	defer p.Close()

	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	release := make(chan struct{})
	done := make(chan struct{})

	// First job blocks the single worker until released.
	ok := p.Submit(img, &memWriter{}, "a.png", func(string, error) {
		<-release
		close(done)
	})
	if !ok {
		t.Fatal("first submit should succeed")
	}
	// The 1-slot queue may hold one more; the one after that must drop.
	ok2 := p.Submit(img, &memWriter{}, "b.png", func(string, error) {})
	ok3 := p.Submit(img, &memWriter{}, "c.png", func(string, error) {})
	if ok2 && ok3 {
		t.Fatal("expected at least one submit to drop due to full queue")
	}
	close(release)
	<-done
}
