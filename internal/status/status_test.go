package status

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindMatching(t *testing.T) {
	tests := []struct {
		err  error
		kind Kind
	}{
		{PathNotValid("missing %s", "file"), KindPathNotValid},
		{ModelParseError("bad header"), KindModelParseError},
		{InternalError("broken"), KindInternalError},
		{KeyAlreadyExists("dup"), KindKeyAlreadyExists},
		{OutOfMemory("need %d", 42), KindOutOfMemory},
		{TypeMismatch("int32 vs fp32"), KindTypeMismatch},
		{Unallocated("no buffer"), KindUnallocated},
	}
	for _, tt := range tests {
		if !Is(tt.err, tt.kind) {
			t.Errorf("Is(%v, %v) = false", tt.err, tt.kind)
		}
		if KindOf(tt.err) != tt.kind {
			t.Errorf("KindOf(%v) = %v, want %v", tt.err, KindOf(tt.err), tt.kind)
		}
	}
}

func TestKindDoesNotCrossMatch(t *testing.T) {
	err := OutOfMemory("full")
	if Is(err, KindInternalError) {
		t.Error("out of memory matched internal error")
	}
}

func TestWrappingPreservesKind(t *testing.T) {
	err := fmt.Errorf("allocate table: %w", OutOfMemory("device full"))
	if !Is(err, KindOutOfMemory) {
		t.Errorf("wrapped error lost its kind: %v", err)
	}
	if !errors.Is(err, &Error{Kind: KindOutOfMemory}) {
		t.Error("errors.Is did not match through the wrap")
	}
}

func TestNilAndForeignErrors(t *testing.T) {
	if Is(nil, KindInternalError) {
		t.Error("nil matched a kind")
	}
	if Is(errors.New("plain"), KindInternalError) {
		t.Error("plain error matched a kind")
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Error("plain error has a kind")
	}
}

func TestMessageFormatting(t *testing.T) {
	err := PathNotValid("open %s: %s", "/tmp/x", "denied")
	want := "path not valid: open /tmp/x: denied"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
