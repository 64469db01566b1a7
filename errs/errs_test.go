package errs

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestKindsMatchSentinels(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"config", Config("ga", "pop_size %d < 2", 1), ErrConfig},
		{"shape", Shape("mfcc", "short input"), ErrShape},
		{"validation", Validation("match", "bad shape"), ErrValidation},
		{"render", Render("render", io.ErrUnexpectedEOF), ErrRender},
		{"estimator", Estimator("predict", io.EOF), ErrEstimator},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if !errors.Is(tc.err, tc.want) {
				t.Fatalf("errors.Is(%v, %v) = false", tc.err, tc.want)
			}
		})
	}
}

func TestEstimatorKeepsCauseKind(t *testing.T) {
	inner := Render("render", io.ErrUnexpectedEOF)
	err := Estimator("predict", inner)
	if !errors.Is(err, ErrEstimator) || !errors.Is(err, ErrRender) {
		t.Fatalf("expected estimator and render kinds in chain: %v", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected root cause in chain: %v", err)
	}
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindEstimator {
		t.Fatalf("errors.As outer kind = %v", e)
	}
}

func TestWithStage(t *testing.T) {
	err := WithStage("rendering", Render("render_patch", io.EOF))
	if !strings.HasPrefix(err.Error(), "rendering: render_patch: render error") {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if KindOf(err) != KindRender {
		t.Fatalf("KindOf = %v, want render", KindOf(err))
	}

	plain := WithStage("feature extraction", io.EOF)
	if !errors.Is(plain, io.EOF) {
		t.Fatalf("expected wrapped cause: %v", plain)
	}
	if WithStage("x", nil) != nil {
		t.Fatal("WithStage(nil) should be nil")
	}
}
