package timefmt

import (
	"testing"
	"time"
)

func TestFormat_UTCWithExplicitOffset(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	in := time.Date(2025, 1, 6, 9, 0, 0, 500_000_000, loc)

	got := Format(in)
	want := "2025-01-06T14:00:00+00:00"
	if got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestParse_RoundTrip(t *testing.T) {
	in := time.Date(2025, 6, 1, 23, 59, 59, 0, time.UTC)

	out, err := Parse(Format(in))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if !out.Equal(in) {
		t.Errorf("round trip = %v, want %v", out, in)
	}
}

func TestParse_AcceptsZSuffix(t *testing.T) {
	out, err := Parse("2025-01-06T14:00:00Z")
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if out != time.Date(2025, 1, 6, 14, 0, 0, 0, time.UTC) {
		t.Errorf("unexpected instant: %v", out)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse("yesterday"); err == nil {
		t.Error("expected error for invalid timestamp")
	}
}

func TestFormat_StringOrderMatchesTimeOrder(t *testing.T) {
	a := time.Date(2025, 1, 6, 13, 59, 59, 0, time.UTC)
	b := time.Date(2025, 1, 6, 14, 0, 0, 0, time.UTC)

	if !(Format(a) < Format(b)) {
		t.Errorf("string order broken: %q !< %q", Format(a), Format(b))
	}
}

func TestToLocalDisplay_Empty(t *testing.T) {
	if got := ToLocalDisplay(""); got != "" {
		t.Errorf("ToLocalDisplay(\"\") = %q, want empty", got)
	}
}
