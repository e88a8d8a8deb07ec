package response

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIsMatchesThroughWrapping(t *testing.T) {
	base := NewKindError(http.StatusBadRequest, "FaceDetectorError", "invalid configuration")
	wrapped := fmt.Errorf("%w: Not a mode: slow", base)

	if !errors.Is(wrapped, base) {
		t.Fatal("wrapped error should match its sentinel")
	}

	other := NewKindError(http.StatusBadRequest, "FaceDetectorError", "invalid options")
	if errors.Is(wrapped, other) {
		t.Error("errors with different messages must not match")
	}
}

func TestKindAndCodeOf(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewKindError(http.StatusBadGateway, "FaceDetectorError", "engine failure"))

	if got := KindOf(err); got != "FaceDetectorError" {
		t.Errorf("KindOf() = %q, want FaceDetectorError", got)
	}
	if got := CodeOf(err, http.StatusInternalServerError); got != http.StatusBadGateway {
		t.Errorf("CodeOf() = %d, want %d", got, http.StatusBadGateway)
	}

	plain := errors.New("boom")
	if got := KindOf(plain); got != "" {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
	if got := CodeOf(plain, http.StatusTeapot); got != http.StatusTeapot {
		t.Errorf("CodeOf(plain) = %d, want fallback", got)
	}
}
