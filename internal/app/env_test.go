package app

import (
	"testing"
	"time"
)

func TestEnvString(t *testing.T) {
	t.Setenv("SOUK_TEST_STR", "  value  ")
	if got := EnvString("SOUK_TEST_STR", "def"); got != "value" {
		t.Fatalf("EnvString trimmed: got=%q", got)
	}
	if got := EnvString("SOUK_TEST_STR_MISSING", "def"); got != "def" {
		t.Fatalf("EnvString default: got=%q", got)
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("SOUK_TEST_BOOL", "true")
	if !EnvBool("SOUK_TEST_BOOL", false) {
		t.Fatalf("expected true")
	}

	t.Setenv("SOUK_TEST_BOOL", "not-a-bool")
	if !EnvBool("SOUK_TEST_BOOL", true) {
		t.Fatalf("garbage must fall back to default")
	}
}

func TestEnvInt(t *testing.T) {
	t.Setenv("SOUK_TEST_INT", "42")
	if got := EnvInt("SOUK_TEST_INT", 7); got != 42 {
		t.Fatalf("got=%d", got)
	}

	t.Setenv("SOUK_TEST_INT", "-3")
	if got := EnvInt("SOUK_TEST_INT", 7); got != 7 {
		t.Fatalf("non-positive must fall back: got=%d", got)
	}
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("SOUK_TEST_DUR", "250ms")
	if got := EnvDuration("SOUK_TEST_DUR", time.Second); got != 250*time.Millisecond {
		t.Fatalf("got=%v", got)
	}

	t.Setenv("SOUK_TEST_DUR", "nope")
	if got := EnvDuration("SOUK_TEST_DUR", time.Second); got != time.Second {
		t.Fatalf("garbage must fall back: got=%v", got)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.HTTPAddr != "0.0.0.0:8080" {
		t.Fatalf("addr default: %q", cfg.HTTPAddr)
	}
	if cfg.DBSchema != "souk" {
		t.Fatalf("schema default: %q", cfg.DBSchema)
	}
	if cfg.ConversationLimit != 0 {
		t.Fatalf("conversation limit default: %d", cfg.ConversationLimit)
	}
	if cfg.UnreadCacheTTL != 5*time.Minute {
		t.Fatalf("cache ttl default: %v", cfg.UnreadCacheTTL)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("SOUK_HTTP_ADDR", "127.0.0.1:9999")
	t.Setenv("SOUK_DB_SCHEMA", "souk_test")
	t.Setenv("SOUK_CONVERSATION_LIMIT", "50")
	t.Setenv("SOUK_READINESS_REQUIRE_DB", "true")

	cfg := LoadConfig()

	if cfg.HTTPAddr != "127.0.0.1:9999" {
		t.Fatalf("addr override: %q", cfg.HTTPAddr)
	}
	if cfg.DBSchema != "souk_test" {
		t.Fatalf("schema override: %q", cfg.DBSchema)
	}
	if cfg.ConversationLimit != 50 {
		t.Fatalf("conversation limit override: %d", cfg.ConversationLimit)
	}
	if !cfg.ReadinessRequireDB {
		t.Fatalf("readiness override lost")
	}
}
