package protocol

import (
	"math"
	"testing"
)

func TestParseDecimal(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"5", 5},
		{"150", 150},
		{"  42", 42},
		{"\t\n7", 7},
		{"+9", 9},
		{"-12", -12},
		{"12abc", 12},
		{"12 34", 12},
		{"abc", 0},
		{"", 0},
		{"-", 0},
		{"+-3", 0},
		{"3\x00garbage", 3},
		{"9223372036854775807", math.MaxInt64},
		{"9223372036854775808", math.MaxInt64},
		{"99999999999999999999999", math.MaxInt64},
		{"-9223372036854775808", math.MinInt64},
		{"-99999999999999999999999", math.MinInt64},
	}
	for _, tc := range cases {
		if got := parseDecimal([]byte(tc.in)); got != tc.want {
			t.Errorf("parseDecimal(%q): expected %d, got %d", tc.in, tc.want, got)
		}
	}
}

func TestChecksumTruncatesToUint32(t *testing.T) {
	if got := uint32(parseDecimal([]byte("4294967297"))); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := uint32(parseDecimal([]byte("-1"))); got != math.MaxUint32 {
		t.Fatalf("expected %d, got %d", uint32(math.MaxUint32), got)
	}
}
