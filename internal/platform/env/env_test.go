package env

import (
	"testing"
	"time"
)

func TestString(t *testing.T) {
	if got := String("TASKFLOW_ENV_STRING_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("String()=%q, want fallback", got)
	}
	t.Setenv("TASKFLOW_ENV_STRING", "  value ")
	if got := String("TASKFLOW_ENV_STRING", "fallback"); got != "value" {
		t.Fatalf("String()=%q, want value", got)
	}
}

func TestDuration(t *testing.T) {
	got, err := Duration("TASKFLOW_ENV_DURATION_MISSING", 5*time.Second)
	if err != nil || got != 5*time.Second {
		t.Fatalf("Duration()=%v err=%v, want 5s", got, err)
	}
	t.Setenv("TASKFLOW_ENV_DURATION", "250ms")
	got, err = Duration("TASKFLOW_ENV_DURATION", 5*time.Second)
	if err != nil || got != 250*time.Millisecond {
		t.Fatalf("Duration()=%v err=%v, want 250ms", got, err)
	}
	t.Setenv("TASKFLOW_ENV_DURATION_BAD", "soon")
	if _, err := Duration("TASKFLOW_ENV_DURATION_BAD", time.Second); err == nil {
		t.Fatalf("Duration() expected error")
	}
}

func TestBoolAndInt(t *testing.T) {
	t.Setenv("TASKFLOW_ENV_BOOL", "false")
	b, err := Bool("TASKFLOW_ENV_BOOL", true)
	if err != nil || b {
		t.Fatalf("Bool()=%v err=%v, want false", b, err)
	}
	t.Setenv("TASKFLOW_ENV_BOOL_BAD", "nope")
	if _, err := Bool("TASKFLOW_ENV_BOOL_BAD", false); err == nil {
		t.Fatalf("Bool() expected error")
	}

	t.Setenv("TASKFLOW_ENV_INT", "7")
	i, err := Int("TASKFLOW_ENV_INT", 42)
	if err != nil || i != 7 {
		t.Fatalf("Int()=%v err=%v, want 7", i, err)
	}
	t.Setenv("TASKFLOW_ENV_INT_EMPTY", "")
	i, err = Int("TASKFLOW_ENV_INT_EMPTY", 42)
	if err != nil || i != 42 {
		t.Fatalf("Int()=%v err=%v, want default 42", i, err)
	}
}

func TestCSV(t *testing.T) {
	t.Setenv("TASKFLOW_ENV_CSV", "admin, editor,,viewer ")
	got := CSV("TASKFLOW_ENV_CSV", nil)
	if len(got) != 3 || got[0] != "admin" || got[1] != "editor" || got[2] != "viewer" {
		t.Fatalf("CSV()=%v", got)
	}
	def := CSV("TASKFLOW_ENV_CSV_MISSING", []string{"x"})
	if len(def) != 1 || def[0] != "x" {
		t.Fatalf("CSV() default=%v", def)
	}
}

func TestOneOf(t *testing.T) {
	t.Setenv("TASKFLOW_ENV_MODE", "Memory")
	got, err := OneOf("TASKFLOW_ENV_MODE", "postgres", "postgres", "memory")
	if err != nil || got != "memory" {
		t.Fatalf("OneOf()=%q err=%v", got, err)
	}
	t.Setenv("TASKFLOW_ENV_MODE", "sqlite")
	if _, err := OneOf("TASKFLOW_ENV_MODE", "postgres", "postgres", "memory"); err == nil {
		t.Fatalf("OneOf() expected error")
	}
}
