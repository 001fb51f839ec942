package telegram

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gotd/td/tgerr"
)

// errors
var (
	ErrNotAuthorized  = errors.New("telegram client not authorized")
	ErrUserNotFound   = errors.New("user not found")
	ErrChannelMissing = errors.New("channel not found")
)

// FloodWaitError is the server instructing the caller to wait Seconds
// before repeating the identical request.
type FloodWaitError struct {
	Seconds int
	Err     error
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("flood wait %ds: %v", e.Seconds, e.Err)
}

func (e *FloodWaitError) Unwrap() error {
	return e.Err
}

// AsFloodWait reports whether err carries a FLOOD_WAIT signal and its duration in seconds.
func AsFloodWait(err error) (int, bool) {
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		return fw.Seconds, true
	}
	return 0, false
}

// classify converts a raw RPC error into a *FloodWaitError when it carries
// a FLOOD_WAIT signal and returns other errors unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if d, ok := tgerr.AsFloodWait(err); ok {
		return &FloodWaitError{Seconds: int(d.Seconds()), Err: err}
	}
	if seconds, ok := parseFloodWait(err); ok {
		return &FloodWaitError{Seconds: seconds, Err: err}
	}
	return err
}

// parseFloodWait falls back to the error text for wrapped errors
// that lost their *tgerr.Error, e.g. "rpc error: code 420: FLOOD_WAIT_15".
func parseFloodWait(err error) (int, bool) {
	str := err.Error()
	parts := strings.SplitN(str, "FLOOD_WAIT_", 2)
	if len(parts) < 2 {
		return 0, false
	}

	var seconds int
	if _, scanErr := fmt.Sscanf(strings.TrimSpace(parts[1]), "%d", &seconds); scanErr != nil {
		return 0, false
	}
	return seconds, true
}
