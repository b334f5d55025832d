package audio

import "errors"

var (
	// ErrInvalidContainer marks a malformed or unsupported RIFF/WAVE buffer.
	ErrInvalidContainer = errors.New("invalid audio container")
	// ErrNoValidRecordings is returned when nothing is left to assemble.
	ErrNoValidRecordings = errors.New("no valid recordings")
	// ErrConversion marks an internal resample/encode failure.
	ErrConversion = errors.New("audio conversion failed")
)
