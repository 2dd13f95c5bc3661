package pagination

import "testing"

func TestNormalizeLimit(t *testing.T) {
	cases := map[int]int{0: DefaultLimit, -3: DefaultLimit, 10: 10, MaxLimit + 1: MaxLimit}
	for in, want := range cases {
		if got := NormalizeLimit(in); got != want {
			t.Fatalf("NormalizeLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestNextOffset(t *testing.T) {
	if got := NextOffset(Params{Limit: 10, Offset: 20}, 10); got != 30 {
		t.Fatalf("expected next offset 30, got %d", got)
	}
	if got := NextOffset(Params{Limit: 10}, 4); got != -1 {
		t.Fatalf("expected no next page, got %d", got)
	}
	if got := (Params{Limit: 5, Offset: -2}).Normalize(); got.Offset != 0 || got.Limit != 5 {
		t.Fatalf("unexpected normalized params %+v", got)
	}
}
