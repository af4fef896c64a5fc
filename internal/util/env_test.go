package util

import (
	"slices"
	"testing"
	"time"
)

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		set   bool
		want  time.Duration
	}{
		{name: "unset", want: 5 * time.Second},
		{name: "go duration", value: "2m", set: true, want: 2 * time.Minute},
		{name: "bare seconds", value: "30", set: true, want: 30 * time.Second},
		{name: "fractional seconds", value: "1.5", set: true, want: 1500 * time.Millisecond},
		{name: "garbage", value: "soon", set: true, want: 5 * time.Second},
		{name: "blank", value: " ", set: true, want: 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.set {
				t.Setenv("TEST_DURATION", tt.value)
			}
			if got := GetEnvDuration("TEST_DURATION", 5*time.Second); got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestGetEnvList(t *testing.T) {
	def := []string{"a"}
	if got := GetEnvList("TEST_LIST_UNSET", def); !slices.Equal(got, def) {
		t.Fatalf("expected default, got %v", got)
	}

	t.Setenv("TEST_LIST", " https://one.example/?u= , ,https://two.example/ ")
	got := GetEnvList("TEST_LIST", def)
	want := []string{"https://one.example/?u=", "https://two.example/"}
	if !slices.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	t.Setenv("TEST_LIST_EMPTY", "")
	got = GetEnvList("TEST_LIST_EMPTY", def)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestGetEnvBoolAndNumeric(t *testing.T) {
	t.Setenv("TEST_BOOL", "yes")
	if !GetEnvBool("TEST_BOOL", true) {
		t.Fatal("unrecognised value should fall back to default")
	}
	t.Setenv("TEST_BOOL", "false")
	if GetEnvBool("TEST_BOOL", true) {
		t.Fatal("expected false")
	}
	t.Setenv("TEST_NUM", "2.5")
	if got := GetEnvNumeric("TEST_NUM", 1); got != 2.5 {
		t.Fatalf("got %v, want 2.5", got)
	}
	t.Setenv("TEST_NUM", "x")
	if got := GetEnvNumeric("TEST_NUM", 7); got != 7 {
		t.Fatalf("got %v, want 7", got)
	}
}
