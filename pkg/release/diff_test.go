package release

import "testing"

func sampleSnapshot() Snapshot {
	return Snapshot{
		{Product: "Air Max 90", AvailableDate: "12-25 at 9:00 a.m.", ImageURL: "https://img/90.png", URL: "https://www.nike.com/launch/t/air-max-90"},
		{Product: "Dunk Low Retro", AvailableDate: "12-27 at 10:00 a.m.", ImageURL: "https://img/dunk.png", URL: "https://www.nike.com/launch/t/dunk-low"},
		{Product: "Air Jordan 1 High", AvailableDate: "01-03 at 9:00 a.m.", ImageURL: "", URL: "https://www.nike.com/launch/t/aj1"},
	}
}

func TestDiffNoChange(t *testing.T) {
	p := sampleSnapshot()
	got := Diff(p, p)
	if len(got.Added) != 0 || len(got.Removed) != 0 {
		t.Errorf("Diff(P, P) = %+v, want empty", got)
	}

	got = Diff(nil, nil)
	if len(got.Added) != 0 || len(got.Removed) != 0 {
		t.Errorf("Diff(nil, nil) = %+v, want empty", got)
	}
}

func TestDiffImageChangeIsAddAndRemove(t *testing.T) {
	p := sampleSnapshot()
	c := sampleSnapshot()
	c[1].ImageURL = "https://img/dunk-v2.png"

	got := Diff(p, c)
	if len(got.Added) != 1 || len(got.Removed) != 1 {
		t.Fatalf("Diff() added=%d removed=%d, want 1 and 1", len(got.Added), len(got.Removed))
	}
	if got.Added[0] != c[1] {
		t.Errorf("Added[0] = %+v, want %+v", got.Added[0], c[1])
	}
	if got.Removed[0] != p[1] {
		t.Errorf("Removed[0] = %+v, want %+v", got.Removed[0], p[1])
	}
}

func TestDiffFromEmpty(t *testing.T) {
	c := sampleSnapshot()

	got := Diff(nil, c)
	if !got.Added.Equal(c) {
		t.Errorf("Added = %+v, want %+v", got.Added, c)
	}
	if len(got.Removed) != 0 {
		t.Errorf("Removed = %+v, want empty", got.Removed)
	}

	got = Diff(c, Snapshot{})
	if !got.Removed.Equal(c) {
		t.Errorf("Removed = %+v, want %+v", got.Removed, c)
	}
	if len(got.Added) != 0 {
		t.Errorf("Added = %+v, want empty", got.Added)
	}
}

func TestDiffPreservesOrderAndDedupes(t *testing.T) {
	s := sampleSnapshot()
	newA := Record{Product: "Blazer Mid", AvailableDate: "02-01 at 9:00 a.m.", URL: "https://x/blazer"}
	newB := Record{Product: "Pegasus Trail", AvailableDate: "02-02 at 9:00 a.m.", URL: "https://x/peg"}

	current := Snapshot{newB, s[0], newA, newB, s[2]}
	got := Diff(s, current)

	want := Snapshot{newB, newA}
	if !got.Added.Equal(want) {
		t.Errorf("Added = %+v, want %+v", got.Added, want)
	}
	if !got.Removed.Equal(Snapshot{s[1]}) {
		t.Errorf("Removed = %+v, want [%+v]", got.Removed, s[1])
	}
}

func TestDiffIgnoresReorder(t *testing.T) {
	p := sampleSnapshot()
	c := Snapshot{p[2], p[0], p[1]}

	got := Diff(p, c)
	if len(got.Added) != 0 || len(got.Removed) != 0 {
		t.Errorf("Diff() on reordered snapshot = %+v, want empty", got)
	}
}

func TestSnapshotEqual(t *testing.T) {
	p := sampleSnapshot()
	if !p.Equal(sampleSnapshot()) {
		t.Error("identical snapshots should be equal")
	}
	if p.Equal(p[:2]) {
		t.Error("snapshots of different length should not be equal")
	}
	if p.Equal(Snapshot{p[1], p[0], p[2]}) {
		t.Error("Equal is order sensitive")
	}
}
