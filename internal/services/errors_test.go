package services_test

import (
	"errors"
	"strings"
	"testing"

	"rollscan/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("exit status 1")
	err := services.Wrap(services.ErrToolFailure, "hole_analysis", "run tiff2holes", "analysis failed", base)
	if !errors.Is(err, services.ErrToolFailure) {
		t.Fatalf("expected ErrToolFailure marker, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped cause to survive, got %v", err)
	}
	for _, want := range []string{"hole_analysis", "run tiff2holes", "analysis failed"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in message %q", want, err.Error())
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "stage", "", "", nil)
	if !errors.Is(err, services.ErrToolFailure) {
		t.Fatalf("expected default marker, got %v", err)
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"download", services.Wrap(services.ErrDownload, "image", "fetch", "status 503", nil), true},
		{"tool failure", services.Wrap(services.ErrToolFailure, "hole_analysis", "run", "", nil), false},
		{"not found", services.Wrap(services.ErrNotFound, "manifest", "fetch", "404", nil), false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.Retryable(tc.err); got != tc.want {
				t.Fatalf("Retryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
