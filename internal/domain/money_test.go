package domain

import "testing"

func TestLineTaxCentsRoundsHalfUp(t *testing.T) {
	cases := []struct {
		subtotal int64
		rate     float64
		want     int64
	}{
		{2000, 10, 200},
		{500, 0, 0},
		// 2997 * 5% = 149.85, rounds to 150.
		{2997, 5, 150},
		{1, 10, 0},
		{5, 10, 1},
		{0, 10, 0},
	}
	for _, tc := range cases {
		if got := LineTaxCents(tc.subtotal, tc.rate); got != tc.want {
			t.Errorf("LineTaxCents(%d, %v) = %d, want %d", tc.subtotal, tc.rate, got, tc.want)
		}
	}
}

func TestSaleTotalCents(t *testing.T) {
	// Two-line cart: 2x1000 at 10% plus 1x500 at 0%.
	subtotal := int64(2000 + 500)
	tax := LineTaxCents(2000, 10) + LineTaxCents(500, 0)
	if subtotal != 2500 || tax != 200 {
		t.Fatalf("unexpected cart math: subtotal=%d tax=%d", subtotal, tax)
	}
	if got := SaleTotalCents(subtotal, tax, 0); got != 2700 {
		t.Fatalf("SaleTotalCents = %d, want 2700", got)
	}

	// 3x999 at 5%.
	if got := SaleTotalCents(2997, LineTaxCents(2997, 5), 0); got != 3147 {
		t.Fatalf("SaleTotalCents = %d, want 3147", got)
	}
}

func TestSaleTotalCentsClampsAtZero(t *testing.T) {
	if got := SaleTotalCents(1000, 100, 5000); got != 0 {
		t.Fatalf("expected total clamped to 0, got %d", got)
	}
}
