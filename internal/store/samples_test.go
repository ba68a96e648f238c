package store

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
)

func testSample(v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 200, 200))
	for y := range 200 {
		for x := range 200 {
			img.SetGray(x, y, color.Gray{Y: uint8((int(v) + x + y) % 256)})
		}
	}
	return img
}

func newTestStore(t *testing.T) *SampleStore {
	t.Helper()
	s, err := NewSampleStore(t.TempDir())
	if err != nil {
		t.Fatalf("creating sample store: %v", err)
	}
	return s
}

func TestAppend_MonotonicSequence(t *testing.T) {
	s := newTestStore(t)

	for i := 1; i <= 3; i++ {
		seq, err := s.Append(42, testSample(uint8(i)))
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if seq != i {
			t.Errorf("expected sequence %d, got %d", i, seq)
		}
	}

	n, err := s.CountFor(42)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 samples, got %d", n)
	}
}

func TestAppend_NeverReusesSequence(t *testing.T) {
	s := newTestStore(t)

	for range 3 {
		if _, err := s.Append(7, testSample(1)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	// Remove the middle file directly; the next sequence must still be
	// above the highest ever used.
	if err := os.Remove(filepath.Join(s.Dir(), "7.2.jpg")); err != nil {
		t.Fatalf("removing sample: %v", err)
	}

	seq, err := s.Append(7, testSample(2))
	if err != nil {
		t.Fatalf("append after delete: %v", err)
	}
	if seq != 4 {
		t.Errorf("expected sequence 4, got %d", seq)
	}
}

func TestListAll_OrderedAndLabeled(t *testing.T) {
	s := newTestStore(t)

	for range 2 {
		if _, err := s.Append(2, testSample(9)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Append(1, testSample(3)); err != nil {
		t.Fatal(err)
	}

	samples, labels, err := s.ListAll()
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(samples) != 3 || len(labels) != 3 {
		t.Fatalf("expected 3 samples, got %d/%d", len(samples), len(labels))
	}
	want := []int64{1, 2, 2}
	for i, id := range labels {
		if id != want[i] {
			t.Errorf("label[%d] = %d, want %d", i, id, want[i])
		}
	}
}

func TestListAll_SkipsMalformedFiles(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Append(5, testSample(1)); err != nil {
		t.Fatal(err)
	}

	// Files outside the naming scheme are ignored, not errors.
	for _, name := range []string{"readme.txt", "notanumber.1.jpg", "9.jpg"} {
		if err := os.WriteFile(filepath.Join(s.Dir(), name), []byte("junk"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	samples, _, err := s.ListAll()
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(samples) != 1 {
		t.Errorf("expected 1 sample, got %d", len(samples))
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	for range 3 {
		if _, err := s.Append(11, testSample(1)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Append(12, testSample(1)); err != nil {
		t.Fatal(err)
	}

	removed, err := s.Delete(11)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if removed != 3 {
		t.Errorf("expected 3 removed, got %d", removed)
	}

	total, _ := s.Count()
	if total != 1 {
		t.Errorf("expected 1 remaining sample, got %d", total)
	}
}

func TestRekey(t *testing.T) {
	s := newTestStore(t)
	for range 2 {
		if _, err := s.Append(100, testSample(1)); err != nil {
			t.Fatal(err)
		}
	}

	renamed, err := s.Rekey(100, 200)
	if err != nil {
		t.Fatalf("rekey: %v", err)
	}
	if renamed != 2 {
		t.Errorf("expected 2 renamed, got %d", renamed)
	}

	old, _ := s.CountFor(100)
	if old != 0 {
		t.Errorf("expected no samples under old key, got %d", old)
	}
	now, _ := s.CountFor(200)
	if now != 2 {
		t.Errorf("expected 2 samples under new key, got %d", now)
	}

	// Sequences are preserved across rekey.
	if _, err := os.Stat(filepath.Join(s.Dir(), "200.2.jpg")); err != nil {
		t.Errorf("expected 200.2.jpg to exist: %v", err)
	}
}

func TestRekeyOccupiedTargetRejected(t *testing.T) {
	s := newTestStore(t)
	for range 3 {
		if _, err := s.Append(42, testSample(1)); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Append(99, testSample(2)); err != nil {
			t.Fatal(err)
		}
	}

	renamed, err := s.Rekey(42, 99)
	if !errors.Is(err, ErrRekeyConflict) {
		t.Fatalf("expected ErrRekeyConflict, got %v", err)
	}
	if renamed != 0 {
		t.Errorf("expected no renames, got %d", renamed)
	}

	// Both corpora must survive untouched.
	total, _ := s.Count()
	if total != 6 {
		t.Errorf("expected 6 samples after rejected rekey, got %d", total)
	}
	old, _ := s.CountFor(42)
	if old != 3 {
		t.Errorf("expected 3 samples under the old key, got %d", old)
	}
}

func TestDeleteFrom(t *testing.T) {
	s := newTestStore(t)
	for range 5 {
		if _, err := s.Append(7, testSample(1)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Append(8, testSample(1)); err != nil {
		t.Fatal(err)
	}

	removed, err := s.DeleteFrom(7, 3)
	if err != nil {
		t.Fatalf("delete from: %v", err)
	}
	if removed != 3 {
		t.Errorf("expected 3 removed, got %d", removed)
	}

	left, _ := s.CountFor(7)
	if left != 2 {
		t.Errorf("expected 2 samples left, got %d", left)
	}
	other, _ := s.CountFor(8)
	if other != 1 {
		t.Errorf("other identity must be untouched, got %d", other)
	}

	maxSeq, err := s.MaxSeq(7)
	if err != nil {
		t.Fatalf("max seq: %v", err)
	}
	if maxSeq != 2 {
		t.Errorf("expected max sequence 2, got %d", maxSeq)
	}
}

func TestIdentities(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []int64{3, 1, 3, 2} {
		if _, err := s.Append(id, testSample(1)); err != nil {
			t.Fatal(err)
		}
	}

	ids, err := s.Identities()
	if err != nil {
		t.Fatalf("identities: %v", err)
	}
	want := []int64{1, 2, 3}
	if len(ids) != len(want) {
		t.Fatalf("expected %d identities, got %d", len(want), len(ids))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %d, want %d", i, ids[i], want[i])
		}
	}
}

func TestListRoundTrip(t *testing.T) {
	s := newTestStore(t)
	orig := testSample(50)
	if _, err := s.Append(8, orig); err != nil {
		t.Fatal(err)
	}

	samples, err := s.List(8)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(samples))
	}
	b := samples[0].Bounds()
	if b.Dx() != 200 || b.Dy() != 200 {
		t.Errorf("expected 200x200 sample, got %dx%d", b.Dx(), b.Dy())
	}
}
