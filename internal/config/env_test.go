package config

import (
	"testing"
	"time"
)

func TestEnv(t *testing.T) {
	t.Setenv("STUFFBOT_TEST_STR", "hello")
	if got := Env("STUFFBOT_TEST_STR", "x"); got != "hello" {
		t.Errorf("Env = %q, want hello", got)
	}
	if got := Env("STUFFBOT_TEST_UNSET", "x"); got != "x" {
		t.Errorf("Env fallback = %q, want x", got)
	}
}

func TestEnvNumbers(t *testing.T) {
	t.Setenv("STUFFBOT_TEST_F", "2.5")
	t.Setenv("STUFFBOT_TEST_I", "7")
	t.Setenv("STUFFBOT_TEST_D", "750ms")
	t.Setenv("STUFFBOT_TEST_BAD", "nope")

	if got := EnvFloat("STUFFBOT_TEST_F", 1); got != 2.5 {
		t.Errorf("EnvFloat = %v, want 2.5", got)
	}
	if got := EnvFloat("STUFFBOT_TEST_BAD", 1); got != 1 {
		t.Errorf("EnvFloat malformed = %v, want default", got)
	}
	if got := EnvInt("STUFFBOT_TEST_I", 0); got != 7 {
		t.Errorf("EnvInt = %v, want 7", got)
	}
	if got := EnvInt("STUFFBOT_TEST_BAD", 3); got != 3 {
		t.Errorf("EnvInt malformed = %v, want default", got)
	}
	if got := EnvDuration("STUFFBOT_TEST_D", time.Second); got != 750*time.Millisecond {
		t.Errorf("EnvDuration = %v, want 750ms", got)
	}
	if got := EnvDuration("STUFFBOT_TEST_BAD", time.Second); got != time.Second {
		t.Errorf("EnvDuration malformed = %v, want default", got)
	}
}
