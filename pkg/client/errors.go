package client

import "errors"

// Terminal stream failures, distinguishable with errors.Is. All of them map
// to status=error on the visible assistant message.
var (
	// ErrTimeout means the overall stream ceiling elapsed.
	ErrTimeout = errors.New("stream timed out")
	// ErrNetwork means the connection failed before the server finished.
	ErrNetwork = errors.New("stream connection failed")
	// ErrUpstream means the server reported an in-band error frame.
	ErrUpstream = errors.New("server reported stream error")
	// ErrParse means the stream violated the framing protocol, e.g. a
	// sentinel with no preceding done or error record.
	ErrParse = errors.New("malformed stream")
)
