package random

import "testing"

func TestBetweenStaysInRange(t *testing.T) {
	t.Parallel()

	src := Seeded(1)
	seen := make(map[int64]bool)

	for range 2_000 {
		v := Between(src, 10, 15)
		if v < 10 || v > 15 {
			t.Fatalf("out of range: %d", v)
		}

		seen[v] = true
	}

	if len(seen) != 6 {
		t.Fatalf("expected every value in [10,15] to show up, saw %v", seen)
	}
}

func TestSeededIsDeterministic(t *testing.T) {
	t.Parallel()

	a, b := Seeded(42), Seeded(42)

	for range 100 {
		if a.Int64N(1_000) != b.Int64N(1_000) {
			t.Fatalf("same seed diverged")
		}
	}
}
