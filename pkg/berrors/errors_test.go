package berrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifiedError_ErrorString(t *testing.T) {
	base := errors.New("boom")
	err := NewPermanent("bad config", base).WithResource("//pkg:target").WithOperation("load")

	got := err.Error()
	want := "[permanent] bad config (resource=//pkg:target, operation=load): boom"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestClassifiedError_Unwrap(t *testing.T) {
	base := errors.New("boom")
	err := NewTransient("io failed", base)

	if !errors.Is(err, base) {
		t.Errorf("expected errors.Is to find wrapped base error")
	}
}

func TestClassifiedError_Is(t *testing.T) {
	a := NewConflict("conflict", nil).WithCode(CodeConflict)
	b := NewConflict("different message", nil).WithCode(CodeConflict)
	c := NewPermanent("other", nil).WithCode(CodeConflict)

	if !errors.Is(a, b) {
		t.Errorf("expected a and b to compare equal by class+code")
	}
	if errors.Is(a, c) {
		t.Errorf("expected a and c to differ by class")
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{NewTransient("x", nil), true},
		{NewThrottled("x", nil), true},
		{NewConflict("x", nil), true},
		{NewCycle("x", nil), false},
		{NewPermanent("x", nil), false},
		{NewInternal("x", nil), false},
		{fmt.Errorf("plain"), false},
		{nil, false},
	}

	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestWithDetail(t *testing.T) {
	err := NewPermanent("bad", nil).WithDetail("line", 42).WithDetail("file", "BUILD")

	if err.Details["line"] != 42 {
		t.Errorf("expected detail line=42, got %v", err.Details["line"])
	}
	if err.Details["file"] != "BUILD" {
		t.Errorf("expected detail file=BUILD, got %v", err.Details["file"])
	}
}

func TestCode(t *testing.T) {
	err := NewCycle("cyc", nil).WithCode(CodeCycle)
	if Code(err) != CodeCycle {
		t.Errorf("Code() = %q, want %q", Code(err), CodeCycle)
	}
	if Code(fmt.Errorf("plain")) != "" {
		t.Errorf("Code() of non-classified error should be empty")
	}
}
