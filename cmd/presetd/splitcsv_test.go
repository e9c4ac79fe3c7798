package main

import (
	"reflect"
	"testing"
)

func TestSplitCSV(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{" a , b ", []string{"a", "b"}},
		{"a,,b", []string{"a", "b"}},
		{"", []string{}},
		{" , ", []string{}},
	}
	for _, tc := range cases {
		if got := splitCSV(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("splitCSV(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("PRESETD_TEST_STR", "x")
	if got := envStr("PRESETD_TEST_STR", "y"); got != "x" {
		t.Fatalf("envStr = %q", got)
	}
	if got := envStr("PRESETD_TEST_MISSING", "y"); got != "y" {
		t.Fatalf("envStr fallback = %q", got)
	}
	t.Setenv("PRESETD_TEST_INT", "42")
	if got := envInt("PRESETD_TEST_INT", 7); got != 42 {
		t.Fatalf("envInt = %d", got)
	}
	t.Setenv("PRESETD_TEST_INT", "nope")
	if got := envInt("PRESETD_TEST_INT", 7); got != 7 {
		t.Fatalf("envInt invalid = %d", got)
	}
}
