package region

import (
	"math/rand"
	"reflect"
	"sort"
	"testing"
)

func TestOverlaps(t *testing.T) {
	base := Region{X: 10, Y: 10, W: 10, H: 10}

	cases := []struct {
		name  string
		other Region
		want  bool
	}{
		{"inside", Region{X: 12, Y: 12, W: 2, H: 2}, true},
		{"partial", Region{X: 15, Y: 15, W: 10, H: 10}, true},
		{"touching right edge", Region{X: 20, Y: 10, W: 5, H: 5}, true},
		{"left", Region{X: 0, Y: 10, W: 9, H: 10}, false},
		{"right", Region{X: 21, Y: 10, W: 5, H: 10}, false},
		{"above", Region{X: 10, Y: 0, W: 10, H: 9}, false},
		{"below", Region{X: 10, Y: 21, W: 10, H: 10}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := base.Overlaps(tc.other); got != tc.want {
				t.Errorf("Overlaps(%v, %v) = %v, want %v", base, tc.other, got, tc.want)
			}
			if got := tc.other.Overlaps(base); got != tc.want {
				t.Errorf("Overlaps is not symmetric for %v", tc.other)
			}
		})
	}
}

func TestUnion(t *testing.T) {
	a := Region{X: 0, Y: 0, W: 30, H: 30}
	b := Region{X: 20, Y: 20, W: 30, H: 30}
	want := Region{X: 0, Y: 0, W: 50, H: 50}
	if got := a.Union(b); got != want {
		t.Fatalf("Union = %v, want %v", got, want)
	}
}

func TestPad(t *testing.T) {
	t.Run("interior", func(t *testing.T) {
		got := Region{X: 100, Y: 50, W: 40, H: 10}.Pad(20)
		want := Region{X: 80, Y: 30, W: 80, H: 50}
		if got != want {
			t.Errorf("Pad = %v, want %v", got, want)
		}
	})
	t.Run("clamped low side", func(t *testing.T) {
		got := Region{X: 5, Y: 0, W: 10, H: 10}.Pad(20)
		want := Region{X: 0, Y: 0, W: 50, H: 50}
		if got != want {
			t.Errorf("Pad = %v, want %v", got, want)
		}
	})
}

func TestClampAndSanitize(t *testing.T) {
	got := Region{X: 1900, Y: 1060, W: 80, H: 80}.Clamp(1920, 1080)
	want := Region{X: 1900, Y: 1060, W: 20, H: 20}
	if got != want {
		t.Fatalf("Clamp = %v, want %v", got, want)
	}

	regions := []Region{
		{X: -10, Y: -10, W: 30, H: 30},
		{X: 2000, Y: 0, W: 10, H: 10}, // outside the frame
		{X: 0, Y: 0, W: 0, H: 10},
	}
	clean := Sanitize(regions, 1920, 1080)
	if len(clean) != 1 {
		t.Fatalf("expected 1 region after sanitize, got %v", clean)
	}
	if clean[0] != (Region{X: 0, Y: 0, W: 20, H: 20}) {
		t.Errorf("unexpected sanitized region: %v", clean[0])
	}
	for _, r := range clean {
		if !r.Valid() {
			t.Errorf("sanitize returned invalid region %v", r)
		}
	}
}

func TestScale(t *testing.T) {
	got, err := Region{X: 10, Y: 20, W: 100, H: 50}.Scale(640, 360, 1920, 1080)
	if err != nil {
		t.Fatalf("Scale failed: %v", err)
	}
	want := Region{X: 30, Y: 60, W: 300, H: 150}
	if got != want {
		t.Errorf("Scale = %v, want %v", got, want)
	}

	if _, err := (Region{}).Scale(0, 360, 1920, 1080); err == nil {
		t.Error("expected error for zero display width")
	}
	if _, err := (Region{}).Scale(640, 360, 0, 0); err == nil {
		t.Error("expected error for unknown video size")
	}
}

func TestMergeSmallInputsUnchanged(t *testing.T) {
	if got := MergeSinglePass(nil); got != nil {
		t.Errorf("expected nil for nil input, got %v", got)
	}
	one := []Region{{X: 1, Y: 2, W: 3, H: 4}}
	if got := MergeSinglePass(one); !reflect.DeepEqual(got, one) {
		t.Errorf("expected single region unchanged, got %v", got)
	}
}

func TestMergeTwoOverlapping(t *testing.T) {
	got := Merge([]Region{
		{X: 0, Y: 0, W: 30, H: 30},
		{X: 20, Y: 20, W: 30, H: 30},
	}, SinglePass)
	want := []Region{{X: 0, Y: 0, W: 50, H: 50}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Merge = %v, want %v", got, want)
	}
}

func TestMergeForwardChain(t *testing.T) {
	// b overlaps a, c only overlaps the grown a∪b accumulator
	regions := []Region{
		{X: 0, Y: 0, W: 10, H: 10},
		{X: 8, Y: 0, W: 10, H: 10},
		{X: 17, Y: 0, W: 10, H: 10},
		{X: 100, Y: 100, W: 5, H: 5},
	}
	got := MergeSinglePass(regions)
	want := []Region{
		{X: 0, Y: 0, W: 27, H: 10},
		{X: 100, Y: 100, W: 5, H: 5},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("MergeSinglePass = %v, want %v", got, want)
	}
}

func TestMergeSinglePassIsOrderDependent(t *testing.T) {
	regions := []Region{
		{X: 0, Y: 0, W: 10, H: 10},   // a
		{X: 100, Y: 0, W: 10, H: 10}, // b, disjoint from a
		{X: 5, Y: 0, W: 96, H: 10},   // c, overlaps a and b
	}

	got := MergeSinglePass(regions)
	want := []Region{
		{X: 0, Y: 0, W: 101, H: 10},  // a∪c
		{X: 100, Y: 0, W: 10, H: 10}, // b, never revisited
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("MergeSinglePass = %v, want %v", got, want)
	}
	if Disjoint(got) {
		t.Fatal("expected the single pass output to retain an overlapping pair for this ordering")
	}

	fixed := MergeFixpoint(regions)
	if !reflect.DeepEqual(fixed, []Region{{X: 0, Y: 0, W: 110, H: 10}}) {
		t.Errorf("MergeFixpoint = %v", fixed)
	}
	if !Disjoint(fixed) {
		t.Error("fixpoint output must be pairwise disjoint")
	}

	// the same input sorted by position converges in one pass
	sorted := append([]Region(nil), regions...)
	sortByPosition(sorted)
	if out := MergeSinglePass(sorted); !Disjoint(out) {
		t.Errorf("sorted input should converge, got %v", out)
	}
}

func TestMergeFixpointProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 200; iter++ {
		n := rng.Intn(12)
		regions := make([]Region, n)
		for i := range regions {
			regions[i] = Region{
				X: rng.Intn(400),
				Y: rng.Intn(400),
				W: 1 + rng.Intn(80),
				H: 1 + rng.Intn(80),
			}
		}

		out := MergeFixpoint(regions)
		if !Disjoint(out) {
			t.Fatalf("iteration %d: fixpoint output overlaps: %v", iter, out)
		}
		// every input must be covered by some output region
		for _, in := range regions {
			if !coveredBy(in, out) {
				t.Fatalf("iteration %d: %v not covered by %v", iter, in, out)
			}
		}
	}
}

func TestParseMode(t *testing.T) {
	if ParseMode("fixpoint") != Fixpoint {
		t.Error("expected fixpoint")
	}
	if ParseMode("") != SinglePass || ParseMode("single_pass") != SinglePass {
		t.Error("expected single pass default")
	}
}

func coveredBy(r Region, set []Region) bool {
	for _, s := range set {
		if r.X >= s.X && r.Y >= s.Y && r.Right() <= s.Right() && r.Bottom() <= s.Bottom() {
			return true
		}
	}
	return false
}

func sortByPosition(regions []Region) {
	sort.Slice(regions, func(i, j int) bool {
		if regions[i].X != regions[j].X {
			return regions[i].X < regions[j].X
		}
		return regions[i].Y < regions[j].Y
	})
}
