package elf32

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedImage is returned (wrapped in a *FormatError) when the
	// buffer is truncated or is not a valid ELF32 image.
	ErrMalformedImage = errors.New("malformed ELF image")

	// ErrMissingSegments is returned when the program header table is
	// empty, leaving no base address to derive.
	ErrMissingSegments = errors.New("program header table is empty")
)

// FormatError describes a structural problem found at a given offset of
// the image.
type FormatError struct {
	Off int64
	Msg string
	Val interface{}
}

func (e *FormatError) Error() string {
	msg := e.Msg
	if e.Val != nil {
		msg += fmt.Sprintf(" '%v'", e.Val)
	}
	return fmt.Sprintf("%v: %s in record at byte %#x", ErrMalformedImage, msg, e.Off)
}

// Is makes every *FormatError match ErrMalformedImage.
func (e *FormatError) Is(target error) bool {
	return target == ErrMalformedImage
}
