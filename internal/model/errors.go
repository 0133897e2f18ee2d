package model

import "errors"

// Error taxonomy shared by every component. Wrap with fmt.Errorf("%w: ...")
// and match with errors.Is.
var (
	// ErrConnection means the video source or the broker is unreachable or dropped.
	ErrConnection = errors.New("connection error")
	// ErrRead means a single frame could not be read.
	ErrRead = errors.New("read error")
	// ErrDetection means the detection capability failed on one frame.
	ErrDetection = errors.New("detection error")
	// ErrStorage means an artifact write or delete failed.
	ErrStorage = errors.New("storage error")
	// ErrConfiguration means the configuration is missing or malformed.
	ErrConfiguration = errors.New("configuration error")
)
