package store

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/kozaktomas/facegate/internal/constants"
)

// ErrRekeyConflict indicates a rekey target that already holds samples.
// Renaming onto it would overwrite files on sequence collision, so the
// move is rejected outright.
var ErrRekeyConflict = errors.New("target identity already has samples")

// SampleStore persists canonical face samples as <identity>.<sequence>.jpg
// files in a single directory. The file name carries the composite key:
// sequences are strictly increasing per identity and never reused while any
// file for that identity remains.
type SampleStore struct {
	dir string
	mu  sync.Mutex
}

// NewSampleStore creates the sample directory if needed.
func NewSampleStore(dir string) (*SampleStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating sample directory: %w", err)
	}
	return &SampleStore{dir: dir}, nil
}

// Dir returns the sample directory path.
func (s *SampleStore) Dir() string { return s.dir }

// parseSampleName splits "<identity>.<seq>.jpg" into its parts.
// Returns ok=false for files that do not follow the scheme.
func parseSampleName(name string) (identity int64, seq int, ok bool) {
	if !strings.HasSuffix(strings.ToLower(name), ".jpg") {
		return 0, 0, false
	}
	parts := strings.Split(name, ".")
	if len(parts) < 3 {
		return 0, 0, false
	}
	identity, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	seq, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return identity, seq, true
}

func (s *SampleStore) sampleFiles() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading sample directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, _, ok := parseSampleName(e.Name()); ok {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// maxSeqLocked returns the highest sequence number stored for an identity,
// or 0 when none exist. Caller must hold s.mu.
func (s *SampleStore) maxSeqLocked(identity int64) (int, error) {
	names, err := s.sampleFiles()
	if err != nil {
		return 0, err
	}
	maxSeq := 0
	for _, name := range names {
		id, seq, _ := parseSampleName(name)
		if id == identity && seq > maxSeq {
			maxSeq = seq
		}
	}
	return maxSeq, nil
}

// MaxSeq returns the highest sequence number stored for an identity, or 0
// when none exist.
func (s *SampleStore) MaxSeq(identity int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxSeqLocked(identity)
}

// Append writes a sample under the next sequence number for the identity
// and returns the sequence used.
func (s *SampleStore) Append(identity int64, sample *image.Gray) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	maxSeq, err := s.maxSeqLocked(identity)
	if err != nil {
		return 0, err
	}
	seq := maxSeq + 1

	path := filepath.Join(s.dir, fmt.Sprintf("%d.%d.jpg", identity, seq))
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating sample file: %w", err)
	}
	defer f.Close()

	if err := jpeg.Encode(f, sample, &jpeg.Options{Quality: constants.SampleJPEGQuality}); err != nil {
		return 0, fmt.Errorf("encoding sample: %w", err)
	}
	return seq, nil
}

func (s *SampleStore) load(name string) (*image.Gray, error) {
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("opening sample %s: %w", name, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding sample %s: %w", name, err)
	}
	if g, ok := img.(*image.Gray); ok {
		return g, nil
	}
	// JPEG decodes grayscale files to *image.Gray; anything else is
	// converted defensively.
	b := img.Bounds()
	g := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g.Set(x, y, img.At(x, y))
		}
	}
	return g, nil
}

// List returns the samples for one identity ordered by sequence number.
func (s *SampleStore) List(identity int64) ([]*image.Gray, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.sampleFiles()
	if err != nil {
		return nil, err
	}

	type entry struct {
		name string
		seq  int
	}
	var entries []entry
	for _, name := range names {
		id, seq, _ := parseSampleName(name)
		if id == identity {
			entries = append(entries, entry{name, seq})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	samples := make([]*image.Gray, 0, len(entries))
	for _, e := range entries {
		img, err := s.load(e.name)
		if err != nil {
			// Unreadable files are skipped, matching the orphan-tolerant
			// behavior of corpus loading.
			continue
		}
		samples = append(samples, img)
	}
	return samples, nil
}

// ListAll loads the entire corpus: every readable sample with its identity
// label, ordered by identity and then sequence.
func (s *SampleStore) ListAll() ([]*image.Gray, []int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.sampleFiles()
	if err != nil {
		return nil, nil, err
	}

	type entry struct {
		name     string
		identity int64
		seq      int
	}
	entries := make([]entry, 0, len(names))
	for _, name := range names {
		id, seq, _ := parseSampleName(name)
		entries = append(entries, entry{name, id, seq})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].identity != entries[j].identity {
			return entries[i].identity < entries[j].identity
		}
		return entries[i].seq < entries[j].seq
	})

	var samples []*image.Gray
	var labels []int64
	for _, e := range entries {
		img, err := s.load(e.name)
		if err != nil {
			continue
		}
		samples = append(samples, img)
		labels = append(labels, e.identity)
	}
	return samples, labels, nil
}

// Count returns the total number of stored samples.
func (s *SampleStore) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names, err := s.sampleFiles()
	if err != nil {
		return 0, err
	}
	return len(names), nil
}

// CountFor returns the number of samples stored for one identity.
func (s *SampleStore) CountFor(identity int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names, err := s.sampleFiles()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, name := range names {
		if id, _, _ := parseSampleName(name); id == identity {
			n++
		}
	}
	return n, nil
}

// Identities returns the distinct identity keys that have stored samples,
// sorted ascending.
func (s *SampleStore) Identities() ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names, err := s.sampleFiles()
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]struct{})
	for _, name := range names {
		id, _, _ := parseSampleName(name)
		seen[id] = struct{}{}
	}
	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Delete removes every sample for an identity and returns how many files
// were removed.
func (s *SampleStore) Delete(identity int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.sampleFiles()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, name := range names {
		id, _, _ := parseSampleName(name)
		if id != identity {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			return removed, fmt.Errorf("removing sample %s: %w", name, err)
		}
		removed++
	}
	return removed, nil
}

// DeleteFrom removes every sample for an identity whose sequence number is
// at or above fromSeq, leaving earlier samples untouched. Returns how many
// files were removed.
func (s *SampleStore) DeleteFrom(identity int64, fromSeq int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.sampleFiles()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, name := range names {
		id, seq, _ := parseSampleName(name)
		if id != identity || seq < fromSeq {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			return removed, fmt.Errorf("removing sample %s: %w", name, err)
		}
		removed++
	}
	return removed, nil
}

// Rekey renames every sample from one identity key to another, preserving
// sequence numbers. Returns how many files were renamed. A target identity
// that already holds samples is ErrRekeyConflict: the rename would collide
// with its sequence numbers.
func (s *SampleStore) Rekey(oldKey, newKey int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.sampleFiles()
	if err != nil {
		return 0, err
	}
	for _, name := range names {
		if id, _, _ := parseSampleName(name); id == newKey {
			return 0, fmt.Errorf("rekey %d to %d: %w", oldKey, newKey, ErrRekeyConflict)
		}
	}
	renamed := 0
	for _, name := range names {
		id, seq, _ := parseSampleName(name)
		if id != oldKey {
			continue
		}
		newName := fmt.Sprintf("%d.%d.jpg", newKey, seq)
		if err := os.Rename(filepath.Join(s.dir, name), filepath.Join(s.dir, newName)); err != nil {
			return renamed, fmt.Errorf("renaming sample %s: %w", name, err)
		}
		renamed++
	}
	return renamed, nil
}
