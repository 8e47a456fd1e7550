package compare

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hazyhaar/cssregression/cssregression/internal/model"
)

const size = 64

// blank returns a white w x h image.
func blank(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	return img
}

// dotted paints n isolated black pixels so none of them reads as
// anti-aliasing.
func dotted(n int) *image.RGBA {
	img := blank(size, size)
	for i := 0; i < n; i++ {
		x := (i % 21) * 3
		y := (i / 21) * 3
		img.Set(x+1, y+1, color.Black)
	}
	return img
}

func save(t *testing.T, path string, img image.Image) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func newCase(dir, name string) *model.TestCase {
	return &model.TestCase{
		Name:                name,
		ViewportWidth:       size,
		ReferenceImagePath:  filepath.Join(dir, "ref", name+".png"),
		TestImagePath:       filepath.Join(dir, "cache", name+".png"),
		DifferenceImagePath: filepath.Join(dir, "cache", name+"-difference.png"),
	}
}

func suiteOf(cases ...*model.TestCase) *model.TestSuite {
	s := model.NewTestSuite("base")
	s.Tests = cases
	return s
}

func checkCounters(t *testing.T, s *model.TestSuite) {
	t.Helper()
	if s.OK+s.Failed != s.Total() {
		t.Errorf("ok %d + failed %d != total %d", s.OK, s.Failed, s.Total())
	}
	if s.IsValid != (s.Failed == 0) {
		t.Errorf("isValid %v with %d failed", s.IsValid, s.Failed)
	}
}

func TestCompare_SelfMatch(t *testing.T) {
	dir := t.TempDir()
	tc := newCase(dir, "overview")
	save(t, tc.ReferenceImagePath, dotted(5))
	save(t, tc.TestImagePath, dotted(5))
	s := suiteOf(tc)
	c := New(100, 0.1)

	written, err := c.Compare(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if !tc.IsValid || s.OK != 1 || s.Failed != 0 || tc.Difference != 0 {
		t.Fatalf("self compare: case %+v, suite ok=%d failed=%d", tc, s.OK, s.Failed)
	}
	if len(written) != 1 || written[0] != tc.DifferenceImagePath {
		t.Fatalf("written: %v", written)
	}
	f, err := os.Open(tc.DifferenceImagePath)
	if err != nil {
		t.Fatalf("difference image: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != size || b.Dy() != size {
		t.Errorf("difference size: %v", b)
	}
	checkCounters(t, s)
}

func TestCompare_Idempotent(t *testing.T) {
	dir := t.TempDir()
	a, b := newCase(dir, "a"), newCase(dir, "b")
	save(t, a.ReferenceImagePath, blank(size, size))
	save(t, a.TestImagePath, dotted(150))
	save(t, b.ReferenceImagePath, blank(size, size))
	save(t, b.TestImagePath, blank(size, size))
	s := suiteOf(a, b)
	c := New(100, 0.1)

	if _, err := c.Compare(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	first := [2]model.TestCase{*a, *b}
	ok, failed := s.OK, s.Failed

	if _, err := c.Compare(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	if s.OK != ok || s.Failed != failed {
		t.Errorf("counters changed: %d/%d -> %d/%d", ok, failed, s.OK, s.Failed)
	}
	if *a != first[0] || *b != first[1] {
		t.Errorf("cases changed between runs")
	}
	if ok != 1 || failed != 1 {
		t.Errorf("got ok=%d failed=%d, want 1/1", ok, failed)
	}
	checkCounters(t, s)
}

func TestCompare_ThresholdBoundary(t *testing.T) {
	tests := []struct {
		name   string
		pixels int
		pass   bool
	}{
		{"at threshold", 100, true},
		{"one over", 101, false},
		{"none", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			tc := newCase(dir, "overview")
			save(t, tc.ReferenceImagePath, blank(size, size))
			save(t, tc.TestImagePath, dotted(tt.pixels))
			s := suiteOf(tc)

			written, err := New(100, 0.1).Compare(context.Background(), s)
			if err != nil {
				t.Fatal(err)
			}
			if tc.Difference != tt.pixels {
				t.Fatalf("difference: got %d, want %d", tc.Difference, tt.pixels)
			}
			if tc.IsValid != tt.pass {
				t.Errorf("isValid: got %v, want %v (failure %q)", tc.IsValid, tt.pass, tc.Failure)
			}
			if !tt.pass && tc.Failure != "image difference 101" {
				t.Errorf("failure: got %q", tc.Failure)
			}
			if len(written) != 1 {
				t.Errorf("difference artifact not written on %s", tt.name)
			}
			if _, err := os.Stat(tc.DifferenceImagePath); err != nil {
				t.Errorf("difference file: %v", err)
			}
			checkCounters(t, s)
		})
	}
}

func TestCompare_ZeroThreshold(t *testing.T) {
	dir := t.TempDir()
	tc := newCase(dir, "overview")
	save(t, tc.ReferenceImagePath, blank(size, size))
	save(t, tc.TestImagePath, dotted(1))
	s := suiteOf(tc)
	if _, err := New(0, 0.1).Compare(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	if tc.IsValid {
		t.Error("single pixel passed a zero threshold")
	}
}

func TestCompare_MissingFile(t *testing.T) {
	dir := t.TempDir()
	tc := newCase(dir, "overview")
	save(t, tc.ReferenceImagePath, blank(size, size))
	s := suiteOf(tc)

	written, err := New(100, 0.1).Compare(context.Background(), s)
	if err != nil {
		t.Fatalf("missing file is not a system error: %v", err)
	}
	if tc.IsValid || s.Failed != 1 || tc.Failure != ErrMissingArtifact.Error() {
		t.Fatalf("case %+v", tc)
	}
	if len(written) != 0 {
		t.Errorf("artifact written for missing file: %v", written)
	}
	if _, err := os.Stat(tc.DifferenceImagePath); !errors.Is(err, os.ErrNotExist) {
		t.Error("difference file exists")
	}
	checkCounters(t, s)
}

func TestCompare_WrongSize(t *testing.T) {
	dir := t.TempDir()
	tc := newCase(dir, "overview")
	save(t, tc.ReferenceImagePath, blank(size, size))
	save(t, tc.TestImagePath, blank(size, size+10))
	s := suiteOf(tc)

	written, err := New(100, 0.1).Compare(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	if tc.IsValid || !strings.HasPrefix(tc.Failure, "wrong size") {
		t.Fatalf("case %+v", tc)
	}
	if len(written) != 0 {
		t.Errorf("artifact written on size mismatch")
	}
	checkCounters(t, s)
}

func TestCompare_UnreadableImage(t *testing.T) {
	dir := t.TempDir()
	bad, good := newCase(dir, "bad"), newCase(dir, "good")
	save(t, bad.ReferenceImagePath, blank(size, size))
	if err := os.MkdirAll(filepath.Dir(bad.TestImagePath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad.TestImagePath, []byte("not a png"), 0o644); err != nil {
		t.Fatal(err)
	}
	save(t, good.ReferenceImagePath, blank(size, size))
	save(t, good.TestImagePath, blank(size, size))
	s := suiteOf(bad, good)

	_, err := New(100, 0.1).Compare(context.Background(), s)
	if !errors.Is(err, ErrUnreadableArtifact) {
		t.Fatalf("got %v, want ErrUnreadableArtifact", err)
	}
	if bad.IsValid || !good.IsValid {
		t.Errorf("bad valid=%v good valid=%v", bad.IsValid, good.IsValid)
	}
	checkCounters(t, s)
}

func TestCompare_ResetsCounters(t *testing.T) {
	dir := t.TempDir()
	tc := newCase(dir, "overview")
	save(t, tc.ReferenceImagePath, blank(size, size))
	save(t, tc.TestImagePath, blank(size, size))
	s := suiteOf(tc)
	s.OK, s.Failed, s.IsValid = 7, 3, false

	if _, err := New(100, 0.1).Compare(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	if s.OK != 1 || s.Failed != 0 || !s.IsValid {
		t.Errorf("counters not reset: ok=%d failed=%d valid=%v", s.OK, s.Failed, s.IsValid)
	}
}

func TestCompare_Progress(t *testing.T) {
	dir := t.TempDir()
	tc := newCase(dir, "overview")
	s := suiteOf(tc)
	var seen []error
	c := New(100, 0.1, WithProgress(func(_ *model.TestCase, err error) { seen = append(seen, err) }))
	if _, err := c.Compare(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 1 || !errors.Is(seen[0], ErrMissingArtifact) {
		t.Errorf("progress: %v", seen)
	}
}
