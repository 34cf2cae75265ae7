package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidOptions = errors.New("invalid processing options")
)

// TranscodeStage names the pipeline step that failed.
type TranscodeStage string

const (
	StageOptions TranscodeStage = "options"
	StageDecode  TranscodeStage = "decode"
	StageEncode  TranscodeStage = "encode"
)

// TranscodeError is fatal to a single item: the item is marked error and the
// batch continues.
type TranscodeError struct {
	Stage TranscodeStage
	Err   error
}

func (e *TranscodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transcode %s failed", e.Stage)
	}
	return fmt.Sprintf("transcode %s: %v", e.Stage, e.Err)
}

func (e *TranscodeError) Unwrap() error { return e.Err }

// DescriptorError reports a failed description request. Reason carries the
// upstream message verbatim when the service supplied one.
type DescriptorError struct {
	Reason     string
	StatusCode int
	Err        error
}

func (e *DescriptorError) Error() string {
	switch {
	case e.Reason != "" && e.Err != nil && e.Reason != e.Err.Error():
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	case e.Reason != "":
		return e.Reason
	case e.Err != nil:
		return e.Err.Error()
	default:
		return "descriptor request failed"
	}
}

func (e *DescriptorError) Unwrap() error { return e.Err }

// IsDescriptorError reports whether err wraps a DescriptorError.
func IsDescriptorError(err error) bool {
	var de *DescriptorError
	return errors.As(err, &de)
}
