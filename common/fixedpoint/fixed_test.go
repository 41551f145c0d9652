package fixedpoint

import "testing"

func TestAddIsCommutative(t *testing.T) {
	a := FromInt(123)
	b := FromFloat64(45.5)
	if a.Add(b).Cmp(b.Add(a)) != 0 {
		t.Fatalf("Add must be commutative")
	}
}

func TestSubSaturatesAtZero(t *testing.T) {
	got := FromInt(1).Sub(FromInt(5))
	if !got.IsZero() {
		t.Fatalf("expected Sub to saturate at zero, got %v", got.Float64())
	}
}

func TestMulDivRoundTrip(t *testing.T) {
	a := FromInt(7)
	b := FromInt(3)
	got := a.Mul(b).Div(b)
	if got.Cmp(a) != 0 {
		t.Fatalf("expected round trip to recover 7, got %v", got.Float64())
	}
}

func TestDivByZeroReturnsZero(t *testing.T) {
	got := FromInt(10).Div(Zero())
	if !got.IsZero() {
		t.Fatalf("expected division by zero to return Zero()")
	}
}

func TestSqrtExactPerfectSquare(t *testing.T) {
	got := FromInt(9).Sqrt()
	if got.Cmp(FromInt(3)) != 0 {
		t.Fatalf("expected sqrt(9)=3, got %v", got.Float64())
	}
}

func TestMinMax(t *testing.T) {
	a, b := FromInt(3), FromInt(7)
	if a.Min(b).Cmp(a) != 0 || a.Max(b).Cmp(b) != 0 {
		t.Fatalf("Min/Max mismatch")
	}
}

func TestTextRoundTrip(t *testing.T) {
	a := FromFloat64(12.5)
	text, err := a.MarshalText()
	if err != nil {
		t.Fatal(err)
	}
	var b Fixed
	if err := b.UnmarshalText(text); err != nil {
		t.Fatal(err)
	}
	if a.Cmp(b) != 0 {
		t.Fatalf("text round trip mismatch: %v vs %v", a.Float64(), b.Float64())
	}
}
