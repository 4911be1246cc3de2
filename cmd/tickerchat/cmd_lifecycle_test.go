package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestPIDFile(t *testing.T) {
	dir := t.TempDir()
	p := pidFileIn(dir)

	if _, err := p.process(); !errors.Is(err, errNotRunning) {
		t.Fatalf("missing file: err = %v, want errNotRunning", err)
	}

	if err := p.write(); err != nil {
		t.Fatal(err)
	}
	proc, err := p.process()
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if proc.Pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", proc.Pid, os.Getpid())
	}

	p.remove()
	if _, err := os.Stat(filepath.Join(dir, "tickerchat.pid")); !os.IsNotExist(err) {
		t.Errorf("PID file not removed: %v", err)
	}
}

func TestPIDFileInvalidContent(t *testing.T) {
	p := pidFileIn(t.TempDir())
	if err := os.WriteFile(string(p), []byte("not-a-pid\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := p.process()
	if err == nil || errors.Is(err, errNotRunning) {
		t.Fatalf("err = %v, want a parse error", err)
	}
}
