package fast

import (
	"fmt"
	"strconv"
	"strings"
)

// ResolveAddress parses a device number string of the form
//
//	[fp-]exp-<board>-i<instance>[-b<breakout>]-<device>
//
// and returns the expansion board address, the breakout index and the
// remaining device part. "exp-0071-i0-b0-p1-1" resolves to ("48", 0, "p1-1").
// Without a b<n> field the breakout is 0. Errors are *ConfigError values.
func ResolveAddress(number string) (string, int, string, error) {
	s := strings.ToLower(strings.TrimSpace(number))
	s = strings.TrimPrefix(s, "fp-")

	parts := strings.SplitN(s, "-", 4)
	if len(parts) != 4 || parts[0] != "exp" || !strings.HasPrefix(parts[2], "i") || parts[3] == "" {
		return "", 0, "", badNumberString(number)
	}

	board := parts[1]
	if len(board) > 4 || board == "" {
		return "", 0, "", badNumberString(number)
	}
	board = strings.Repeat("0", 4-len(board)) + board

	instance, ok := normalizeInstance(parts[2][1:])
	if !ok {
		return "", 0, "", badNumberString(number)
	}

	breakout := 0
	device := parts[3]
	if strings.HasPrefix(device, "b") {
		brk, rest, ok := strings.Cut(device, "-")
		if !ok || rest == "" {
			return "", 0, "", badNumberString(number)
		}
		n, err := strconv.Atoi(brk[1:])
		if err != nil || n < 0 {
			return "", 0, "", badNumberString(number)
		}
		breakout = n
		device = rest
	}

	addr, ok := expansionBoardAddresses[boardSlot{board: board, instance: instance}]
	if !ok {
		return "", 0, "", &ConfigError{
			Code:    CodeUnknownAddress,
			Message: fmt.Sprintf("no expansion board %s with instance %s for %q", board, instance, number),
		}
	}

	return addr, breakout, device, nil
}

func badNumberString(number string) error {
	return &ConfigError{
		Code:    CodeBadAddressString,
		Message: fmt.Sprintf("invalid expansion board number string %q, expected exp-<board>-i<instance>[-b<breakout>]-<device>", number),
	}
}
