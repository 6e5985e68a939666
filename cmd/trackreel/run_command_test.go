package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestWatchInterruptSilentAfterNormalFinish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer

	release := watchInterrupt(ctx, &out)
	release()
	cancel()

	if out.Len() != 0 {
		t.Fatalf("expected no interrupt notice after a finished run, got %q", out.String())
	}
}

type notifyWriter struct {
	lines chan string
}

func (w notifyWriter) Write(p []byte) (int, error) {
	w.lines <- string(p)
	return len(p), nil
}

func TestWatchInterruptReportsSignalDuringRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	out := notifyWriter{lines: make(chan string, 1)}

	release := watchInterrupt(ctx, out)
	defer release()
	cancel()

	select {
	case line := <-out.lines:
		if !strings.Contains(line, "Interrupt received") {
			t.Fatalf("unexpected notice %q", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected interrupt notice")
	}
}
