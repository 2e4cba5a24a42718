package hostenv

import (
	"errors"
	"testing"
)

func TestParseStartStack(t *testing.T) {
	// Field 28 is 140736486066640.
	line := "1234 (my (odd) prog) S 1 1234 1234 0 -1 4194560 107 0 0 0 0 0 0 0 20 0 1 0 42 2265088 128 18446744073709551615 94065219858432 94065219866325 140736486066640 0 0 0 0 0 0 0 0 0 17 3 0 0 0 0 0"
	got, err := parseStartStack(line)
	if err != nil {
		t.Fatal(err)
	}
	if got != 140736486066640 {
		t.Fatalf("expected 140736486066640, got %d", got)
	}

	for _, bad := range []string{"", "1234 (prog", "1234 (prog) S 1 2 3", "1234 (prog) S 1 1 1 0 -1 0 0 0 0 0 0 0 0 0 20 0 1 0 42 0 0 0 0 0 zz"} {
		if _, err := parseStartStack(bad); err == nil {
			t.Errorf("expected an error for %q", bad)
		}
	}

	hidden := "1 (init) S 0 1 1 0 -1 4194560 0 0 0 0 0 0 0 0 20 0 1 0 1 0 0 18446744073709551615 0 0 0 0 0 0 0 0 0 0 0 0 17 0 0 0 0 0 0"
	if _, err := parseStartStack(hidden); !errors.Is(err, ErrNoStack) {
		t.Errorf("expected ErrNoStack for a hidden startstack, got %v", err)
	}
}
