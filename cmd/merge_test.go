package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bbmini/errdb/internal/merge"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newMergeTestCmd(out *bytes.Buffer) *cobra.Command {
	cmd := &cobra.Command{Use: "merge"}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.Flags().String("watch", "", "keep merging stores written to this directory")
	return cmd
}

func TestMergeText(t *testing.T) {
	dir := t.TempDir()
	target := useStore(t, dir, "text")

	shards := filepath.Join(dir, "shards")
	a := filepath.Join(shards, "a.sqlite3")
	b := filepath.Join(shards, "b.sqlite3")
	seedStore(t, a, "not a statement", "';' expected")
	seedStore(t, b, "not a statement", "';' expected", "cannot find symbol -   class Dcuk")

	var out bytes.Buffer
	if err := runMerge(newMergeTestCmd(&out), []string{shards}); err != nil {
		t.Fatalf("runMerge() error = %v", err)
	}

	output := out.String()
	for _, want := range []string{
		"a.sqlite3: 2 read, 2 inserted, 0 duplicates (errdb)",
		"b.sqlite3: 3 read, 1 inserted, 2 duplicates (errdb)",
		"Merged 2 sources: 5 read, 3 inserted",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
	if n := countMessages(t, target); n != 3 {
		t.Errorf("target holds %d messages, want 3", n)
	}

	// Merging again changes nothing.
	out.Reset()
	if err := runMerge(newMergeTestCmd(&out), []string{filepath.Join(shards, "*.sqlite3")}); err != nil {
		t.Fatalf("runMerge() error = %v", err)
	}
	if n := countMessages(t, target); n != 3 {
		t.Errorf("target holds %d messages after re-merge, want 3", n)
	}
}

func TestMergeJSON(t *testing.T) {
	dir := t.TempDir()
	useStore(t, dir, "json")
	src := filepath.Join(dir, "src", "one.sqlite3")
	seedStore(t, src, "not a statement")

	var out bytes.Buffer
	if err := runMerge(newMergeTestCmd(&out), []string{src}); err != nil {
		t.Fatalf("runMerge() error = %v", err)
	}

	var results []merge.Result
	if err := json.Unmarshal(out.Bytes(), &results); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out.String())
	}
	if len(results) != 1 || results[0].Inserted != 1 {
		t.Errorf("unexpected results: %+v", results)
	}
}

func TestMergeSkipsTarget(t *testing.T) {
	dir := t.TempDir()
	target := useStore(t, dir, "text")
	seedStore(t, target, "not a statement")
	other := filepath.Join(dir, "other.sqlite3")
	seedStore(t, other, "';' expected")

	var out bytes.Buffer
	if err := runMerge(newMergeTestCmd(&out), []string{dir}); err != nil {
		t.Fatalf("runMerge() error = %v", err)
	}
	if strings.Contains(out.String(), "errors.sqlite3") {
		t.Errorf("target should not be merged into itself:\n%s", out.String())
	}
	if n := countMessages(t, target); n != 2 {
		t.Errorf("target holds %d messages, want 2", n)
	}
}

func TestMergeErrors(t *testing.T) {
	dir := t.TempDir()
	useStore(t, dir, "text")

	tests := []struct {
		name string
		args []string
	}{
		{"no sources", nil},
		{"missing source", []string{filepath.Join(dir, "missing.sqlite3")}},
		{"unmatched glob", []string{filepath.Join(dir, "*.nothing")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := runMerge(newMergeTestCmd(&out), tt.args); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

// syncBuffer is a bytes.Buffer safe to read while a command writes to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestMergeWatch(t *testing.T) {
	dir := t.TempDir()
	target := useStore(t, dir, "text")
	viper.Set("watch.settle", "50ms")

	incoming := filepath.Join(dir, "incoming")
	seedStore(t, filepath.Join(incoming, "early.sqlite3"), "not a statement")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	cmd := &cobra.Command{Use: "merge"}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.Flags().String("watch", "", "keep merging stores written to this directory")
	cmd.SetContext(ctx)
	_ = cmd.Flags().Set("watch", incoming)

	done := make(chan error, 1)
	go func() { done <- runMerge(cmd, nil) }()

	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(out.String(), "early.sqlite3: 1 read, 1 inserted") {
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("store in watched directory was not merged, output:\n%s", out.String())
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runMerge() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancellation")
	}

	if n := countMessages(t, target); n != 1 {
		t.Errorf("target holds %d messages, want 1", n)
	}
}
