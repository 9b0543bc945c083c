package graycode

import "fmt"

// SequenceError is returned when a frame arrives out of the expected bit-plane
// order, or when finalizing is requested before the sequence is complete.
type SequenceError struct {
	Frame    int
	Expected int
	Reason   string
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("graycode sequence: %s (frame %d of %d)", e.Reason, e.Frame, e.Expected)
}

// DimensionError is returned when a frame does not match the size of the
// frames already ingested in this session.
type DimensionError struct {
	Width      int
	Height     int
	WantWidth  int
	WantHeight int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("graycode frame is %dx%d, session frames are %dx%d",
		e.Width, e.Height, e.WantWidth, e.WantHeight)
}

// FormatError is returned when a persisted dataset is corrupt, truncated or
// was written for a different payload.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "graycode dataset format: " + e.Reason
}

func formatErrorf(format string, args ...any) *FormatError {
	return &FormatError{Reason: fmt.Sprintf(format, args...)}
}
