package fast

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode is returned when a frame is not valid text outside the
	// startup drain.
	ErrDecode = errors.New("fast: interference or bad data received")

	// ErrFirmwareTooOld is returned when a processor or board reports
	// firmware older than the supported minimum.
	ErrFirmwareTooOld = errors.New("fast: firmware version mismatch")

	// ErrDuplicateBoard is returned when two expansion boards resolve to the
	// same bus address.
	ErrDuplicateBoard = errors.New("fast: expansion board address already registered")

	// ErrConfirmTimeout is returned by the writer when a confirmation for the
	// previous frame never arrived.
	ErrConfirmTimeout = errors.New("fast: timeout waiting for send ready")

	// ErrHardwareMismatch is returned when a board identifies as something
	// other than what the configuration declares.
	ErrHardwareMismatch = errors.New("fast: hardware does not match configuration")

	// ErrBadIdentity is returned for ID: responses that do not have the
	// expected fields.
	ErrBadIdentity = errors.New("fast: malformed ID response")

	// ErrStopped is returned to callers blocked on a connection that was stopped
	ErrStopped = errors.New("fast: communicator stopped")
)

// Configuration error codes
const (
	CodeBadAddressString  = 7
	CodeUnknownAddress    = 8
	CodeUnknownBoardModel = 9
	CodeBadBreakoutPort   = 10
	CodeDuplicateAddress  = 11
)

// ConfigError is a fatal configuration problem carrying a diagnostic code
type ConfigError struct {
	Code    int
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error %d: %s", e.Code, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is a ConfigError, returning its code
func IsConfigError(err error) (int, bool) {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	return 0, false
}
