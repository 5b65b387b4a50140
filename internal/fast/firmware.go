package fast

import (
	"fmt"

	"github.com/hashicorp/go-version"
)

// CheckFirmware fails when actual is older than minimum
func CheckFirmware(processor, actual, minimum string) error {
	want, err := version.NewVersion(minimum)
	if err != nil {
		return fmt.Errorf("invalid minimum firmware %q: %w", minimum, err)
	}

	got, err := version.NewVersion(actual)
	if err != nil {
		return fmt.Errorf("%w: %s processor reported unparseable firmware %q", ErrFirmwareTooOld, processor, actual)
	}

	if got.LessThan(want) {
		return fmt.Errorf("%w: the %s processor must run firmware %s or newer, but yours is %s",
			ErrFirmwareTooOld, processor, minimum, actual)
	}
	return nil
}
