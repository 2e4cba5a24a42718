// Package hostenv gives access to the argument block the running process
// was started with.
package hostenv

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrNoStack is returned when the initial stack of the process can not be
// found.
var ErrNoStack = errors.New("initial stack not found")

// parseStartStack extracts the startstack field (the address of the argc
// word the kernel placed on the initial stack) from the contents of
// /proc/<pid>/stat.
func parseStartStack(stat string) (uint64, error) {
	// comm may contain spaces and parenthesis, fields are counted from
	// the last closing one.
	i := strings.LastIndexByte(stat, ')')
	if i < 0 || i+2 > len(stat) {
		return 0, fmt.Errorf("malformed stat line %q", stat)
	}
	fields := strings.Fields(stat[i+1:])
	// fields[0] is field 3 (state), startstack is field 28.
	const startStackField = 28 - 3
	if len(fields) <= startStackField {
		return 0, fmt.Errorf("stat line has %d fields, startstack missing", len(fields)+2)
	}
	v, err := strconv.ParseUint(fields[startStackField], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing startstack: %w", err)
	}
	if v == 0 {
		return 0, fmt.Errorf("%w: startstack is hidden", ErrNoStack)
	}
	return v, nil
}

func readStartStack() (uint64, error) {
	buf, err := os.ReadFile("/proc/self/stat")
	if err != nil {
		return 0, err
	}
	return parseStartStack(string(buf))
}
