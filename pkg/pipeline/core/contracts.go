package core

import "context"

// Converter renders one source document as plain text.
type Converter interface {
	Convert(ctx context.Context, path string) (string, error)
}

// ConvertFunc adapts a function to the Converter interface.
type ConvertFunc func(ctx context.Context, path string) (string, error)

func (f ConvertFunc) Convert(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}

// Request is one reasoning call: a fixed instruction plus the assembled user text.
type Request struct {
	Instruction string
	User        string
	Model       string
	Effort      string
}

// Completer performs a single blocking request against a reasoning endpoint.
//
// An empty string with a nil error means the endpoint answered without content.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleteFunc adapts a function to the Completer interface.
type CompleteFunc func(ctx context.Context, req Request) (string, error)

func (f CompleteFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// ConversionError marks a per-document conversion failure. Callers may skip the
// document and continue.
type ConversionError struct {
	Stem string
	Err  error
}

func (e *ConversionError) Error() string {
	if e == nil || e.Err == nil {
		return "conversion failed"
	}
	if e.Stem == "" {
		return "conversion failed: " + e.Err.Error()
	}
	return "[" + e.Stem + "] conversion failed: " + e.Err.Error()
}

func (e *ConversionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
