package cmd

import (
	"strings"
	"testing"
)

func TestCheckReachableVolume(t *testing.T) {
	server := setupVolume(t, "a/f1", "b/", "top")

	stdout, _, err := execute(t, "check", "-s", server, "--volume", "vol0")
	if err != nil {
		t.Fatalf("check returned error: %v", err)
	}
	if !strings.Contains(stdout, "✓ Connected") {
		t.Errorf("expected connection success, got: %s", stdout)
	}
	if !strings.Contains(stdout, "/ is readable (3 entries)") {
		t.Errorf("expected root entry count, got: %s", stdout)
	}
}

func TestCheckMissingStartPath(t *testing.T) {
	server := setupVolume(t, "a/f1")

	stdout, _, err := execute(t, "check", "-s", server, "--volume", "vol0", "-p", "/nope")
	if err == nil {
		t.Fatal("expected error for a missing start directory")
	}
	if !strings.Contains(stdout, "✗ Cannot read /nope") {
		t.Errorf("expected read failure, got: %s", stdout)
	}
}

func TestCheckUnreachableVolume(t *testing.T) {
	stdout, _, err := execute(t, "check", "-s", t.TempDir(), "--volume", "missing")
	if err == nil {
		t.Fatal("expected error for a volume that does not exist")
	}
	if !strings.Contains(stdout, "✗ Connection failed") {
		t.Errorf("expected connection failure, got: %s", stdout)
	}
}
