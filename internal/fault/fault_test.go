package fault

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestIs_UnwrapsNestedErrors(t *testing.T) {
	base := New(CodeChecksumMismatch, "destination digest differs")
	wrapped := fmt.Errorf("apply item: %w", base)

	if !Is(wrapped, CodeChecksumMismatch) {
		t.Error("Is() should match through wrapping")
	}
	if Is(wrapped, CodeVolumeIO) {
		t.Error("Is() matched the wrong code")
	}
	if Is(errors.New("plain"), CodeVolumeIO) {
		t.Error("Is() matched a non-taxonomy error")
	}
}

func TestFatal(t *testing.T) {
	cases := []struct {
		err   error
		fatal bool
	}{
		{New(CodeGuardViolation, "protected path"), true},
		{New(CodeThresholdExceeded, "too many actions"), true},
		{New(CodeConflictUnresolvable, "resolver bug"), true},
		{New(CodeApplyConflict, "already running"), true},
		{New(CodeChecksumMismatch, "bad copy"), false},
		{New(CodeVolumeIO, "transient"), false},
		{New(CodeClusteringUnavailable, "no backend"), false},
		{errors.New("unclassified"), true},
	}
	for _, tc := range cases {
		if got := Fatal(tc.err); got != tc.fatal {
			t.Errorf("Fatal(%v) = %v, want %v", tc.err, got, tc.fatal)
		}
	}
}

func TestError_MessageIncludesContext(t *testing.T) {
	e := &Error{Code: CodeVolumeIO, Message: "rename failed", Path: "/w/a.txt", ItemID: "abc"}
	msg := e.Error()
	for _, want := range []string{"VOLUME_IO_ERROR", "rename failed", "/w/a.txt", "abc"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message %q missing %q", msg, want)
		}
	}
}
