package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestOfflineCreateThenValidate(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer

	if err := offline(options{cmd: "create", dir: dir, name: "add loan notes"}, &out); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.Contains(out.String(), "_add_loan_notes.sql") {
		t.Fatalf("unexpected create output %q", out.String())
	}

	out.Reset()
	if err := offline(options{cmd: "validate", dir: dir}, &out); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out.String(), "(1 files)") {
		t.Fatalf("unexpected validate output %q", out.String())
	}
}

func TestOfflineRequiresName(t *testing.T) {
	if err := offline(options{cmd: "create", dir: t.TempDir()}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected missing name error")
	}
}

func TestOfflineDefersDatabaseCommands(t *testing.T) {
	for _, cmd := range []string{"up", "down", "status", "version", "bogus"} {
		if err := offline(options{cmd: cmd}, &bytes.Buffer{}); !errors.Is(err, errNeedsDatabase) {
			t.Fatalf("%s: expected errNeedsDatabase, got %v", cmd, err)
		}
	}
}

func TestApplyRejectsBadArguments(t *testing.T) {
	if err := apply(t.Context(), nil, options{cmd: "version"}); err == nil || !strings.Contains(err.Error(), "-version") {
		t.Fatalf("expected missing version error, got %v", err)
	}
	if err := apply(t.Context(), nil, options{cmd: "sideways"}); err == nil {
		t.Fatalf("expected unknown command error")
	}
}
