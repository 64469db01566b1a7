// Package errs defines the error taxonomy shared by the feature, synth,
// estimator and match packages.
//
// Every error produced by this module carries a Kind. Callers test for a
// kind with errors.Is against the package-level sentinels:
//
//	if errors.Is(err, errs.ErrRender) { ... }
//
// The wrapped cause stays reachable through errors.Is and errors.As as well.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConfig marks invalid construction parameters.
	KindConfig
	// KindRender marks a synthesizer failure for a specific patch.
	KindRender
	// KindShape marks a dimensionality mismatch.
	KindShape
	// KindValidation marks input that is well formed but not acceptable.
	KindValidation
	// KindEstimator marks any failure raised inside an estimator's Predict.
	KindEstimator
)

var (
	ErrConfig     = errors.New("config error")
	ErrRender     = errors.New("render error")
	ErrShape      = errors.New("shape error")
	ErrValidation = errors.New("validation error")
	ErrEstimator  = errors.New("estimator error")
)

func (k Kind) sentinel() error {
	switch k {
	case KindConfig:
		return ErrConfig
	case KindRender:
		return ErrRender
	case KindShape:
		return ErrShape
	case KindValidation:
		return ErrValidation
	case KindEstimator:
		return ErrEstimator
	default:
		return nil
	}
}

func (k Kind) String() string {
	if s := k.sentinel(); s != nil {
		return s.Error()
	}
	return "error"
}

// Error is the concrete error type. Stage names the pipeline stage that
// failed (for example "feature extraction"), Op the operation inside it.
type Error struct {
	Kind  Kind
	Stage string
	Op    string
	Err   error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Stage != "" {
		b.WriteString(e.Stage)
		b.WriteString(": ")
	}
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Err == nil {
		b.WriteString(e.Kind.String())
		return b.String()
	}
	// A wrapped *Error already names its kind.
	if KindOf(e.Err) != e.Kind {
		b.WriteString(e.Kind.String())
		b.WriteString(": ")
	}
	b.WriteString(e.Err.Error())
	return b.String()
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		out = append(out, s)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func newf(kind Kind, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Config returns a KindConfig error for op.
func Config(op string, format string, args ...any) error {
	return newf(KindConfig, op, format, args...)
}

// Shape returns a KindShape error for op.
func Shape(op string, format string, args ...any) error {
	return newf(KindShape, op, format, args...)
}

// Validation returns a KindValidation error for op.
func Validation(op string, format string, args ...any) error {
	return newf(KindValidation, op, format, args...)
}

// Render wraps a synthesizer failure.
func Render(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindRender, Op: op, Err: err}
}

// Estimator wraps a failure raised inside Predict. The inner kind of
// err remains testable through errors.Is.
func Estimator(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindEstimator, Op: op, Err: err}
}

// Wrap attaches kind and stage to err. A nil err yields nil.
func Wrap(kind Kind, stage string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// WithStage labels err with the failing pipeline stage. If err is already
// an *Error without a stage, a copy carrying the stage is returned.
func WithStage(stage string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) && e.Stage == "" && e == err {
		cp := *e
		cp.Stage = stage
		return &cp
	}
	return &Error{Kind: KindOf(err), Stage: stage, Err: err}
}

// KindOf reports the outermost kind found in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
