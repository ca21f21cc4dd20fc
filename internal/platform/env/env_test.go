package env

import (
	"testing"
	"time"
)

func TestFallbacks(t *testing.T) {
	t.Setenv("CAL_TEST_INT", "nope")
	t.Setenv("CAL_TEST_DURATION", "-3s")
	t.Setenv("CAL_TEST_BOOL", "maybe")

	if got := Int("CAL_TEST_INT", 7); got != 7 {
		t.Fatalf("Int fallback = %d", got)
	}
	if got := Duration("CAL_TEST_DURATION", time.Second); got != time.Second {
		t.Fatalf("Duration fallback = %v", got)
	}
	if got := Bool("CAL_TEST_BOOL", true); !got {
		t.Fatalf("Bool fallback = %v", got)
	}
	if got := String("CAL_TEST_UNSET", "x"); got != "x" {
		t.Fatalf("String fallback = %q", got)
	}
}

func TestParsed(t *testing.T) {
	t.Setenv("CAL_TEST_INT", "12")
	t.Setenv("CAL_TEST_DURATION", "1500ms")
	t.Setenv("CAL_TEST_BOOL", "false")

	if got := Int("CAL_TEST_INT", 0); got != 12 {
		t.Fatalf("Int = %d", got)
	}
	if got := Duration("CAL_TEST_DURATION", 0); got != 1500*time.Millisecond {
		t.Fatalf("Duration = %v", got)
	}
	if got := Bool("CAL_TEST_BOOL", true); got {
		t.Fatalf("Bool = %v", got)
	}
}
