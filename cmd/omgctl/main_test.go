package main

import "testing"

func TestExtractYesFlagFindsLongForm(t *testing.T) {
	yes, rest := extractYesFlag([]string{"firefox", "--yes"})
	if !yes {
		t.Fatal("expected --yes to be detected")
	}
	if len(rest) != 1 || rest[0] != "firefox" {
		t.Fatalf("expected --yes stripped from args, got %v", rest)
	}
}

func TestExtractYesFlagFindsShortForm(t *testing.T) {
	yes, rest := extractYesFlag([]string{"-y", "firefox", "vim"})
	if !yes {
		t.Fatal("expected -y to be detected")
	}
	if len(rest) != 2 || rest[0] != "firefox" || rest[1] != "vim" {
		t.Fatalf("expected -y stripped from args, got %v", rest)
	}
}

func TestExtractYesFlagAbsent(t *testing.T) {
	yes, rest := extractYesFlag([]string{"firefox"})
	if yes {
		t.Fatal("did not expect --yes to be detected")
	}
	if len(rest) != 1 || rest[0] != "firefox" {
		t.Fatalf("expected args unchanged, got %v", rest)
	}
}
