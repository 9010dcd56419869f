package hfp

import (
	"reflect"
	"testing"
)

func TestNormalizeUnknownAt(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+xapl=0123,7", "+XAPL=0123,7"},
		{"+cpbs = \"me\"", "+CPBS=\"me\""},
		{"+test=\"unterminated", "+TEST=\"unterminated\""},
		{"+a b c", "+ABC"},
		{"", ""},
	}

	for _, tc := range cases {
		if got := normalizeUnknownAt(tc.in); got != tc.want {
			t.Errorf("normalizeUnknownAt(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCommandType(t *testing.T) {
	cases := []struct {
		in   string
		want atCommandType
	}{
		{"+XAPL?", atTypeRead},
		{"+XAPL=?", atTypeTest},
		{"+XAPL=1,2", atTypeSet},
		{"+XAPL", atTypeUnknown},
		{"+XA", atTypeUnknown},
	}

	for _, tc := range cases {
		if got := commandType(tc.in); got != tc.want {
			t.Errorf("commandType(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestGenerateArgs(t *testing.T) {
	cases := []struct {
		in   string
		want []any
	}{
		{"1,2,3", []any{1, 2, 3}},
		{"abc,42", []any{"abc", 42}},
		{"\"a,b\",1", []any{"\"a,b\"", 1}},
		{"", []any{""}},
	}

	for _, tc := range cases {
		if got := generateArgs(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("generateArgs(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseBindIndicators(t *testing.T) {
	cases := []struct {
		in   string
		want []int
	}{
		{"1,2", []int{1, 2}},
		{" 1 , 2 , 17 ", []int{1, 2, 17}},
		{"x,2", []int{2}},
		{"", nil},
	}

	for _, tc := range cases {
		if got := parseBindIndicators(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("parseBindIndicators(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestFindCharSkipsQuotes(t *testing.T) {
	if got := findChar(',', "\"a,b\",c", 0); got != 5 {
		t.Fatalf("findChar = %d, want 5", got)
	}
	if got := findChar(',', "abc", 0); got != 3 {
		t.Fatalf("findChar = %d, want len(input)", got)
	}
}
