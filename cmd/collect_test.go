package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bbmini/errdb/internal/collect"
	"github.com/spf13/cobra"
)

func newCollectTestCmd(out *bytes.Buffer) *cobra.Command {
	cmd := &cobra.Command{Use: "collect"}
	cmd.SetOut(out)
	cmd.Flags().String("root", ".", "dataset root directory")
	cmd.Flags().String("slices", collect.DefaultSlicePattern, "glob selecting slice directories")
	cmd.Flags().Int("limit", 0, "stop after this many projects")
	cmd.Flags().String("source", "", "name recorded as each message's source")
	return cmd
}

func writeDataset(t *testing.T, root string) {
	t.Helper()
	files := map[string]string{
		"srcml-2016-01/project-1/src-1.xml": `<unit><unit version="3" compile-success="false"><compile-error start="4:9">not a statement</compile-error><compile-error>';' expected</compile-error></unit></unit>`,
		"srcml-2016-01/project-2/src-1.xml": `<unit><unit version="1" compile-success="false"><compile-error>cannot find symbol -   class Dcuk</compile-error></unit></unit>`,
		"srcml-2016-02/project-3/src-1.xml": `<unit><unit version="1" compile-success="false"><compile-error>not a statement</compile-error></unit></unit>`,
	}
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCollectText(t *testing.T) {
	dir := t.TempDir()
	dbPath := useStore(t, dir, "text")
	root := filepath.Join(dir, "mini")
	writeDataset(t, root)

	var out bytes.Buffer
	cmd := newCollectTestCmd(&out)
	_ = cmd.Flags().Set("root", root)

	if err := runCollect(cmd, nil); err != nil {
		t.Fatalf("runCollect() error = %v", err)
	}
	if !strings.Contains(out.String(), "Collected 4 messages from 3 files (3 projects in 2 slices)") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
	if n := countMessages(t, dbPath); n != 4 {
		t.Errorf("store holds %d messages, want 4", n)
	}

	out.Reset()
	if err := runCollect(cmd, nil); err != nil {
		t.Fatalf("second runCollect() error = %v", err)
	}
	if !strings.Contains(out.String(), "Inserted 0 new messages") {
		t.Errorf("re-collecting should insert nothing:\n%s", out.String())
	}
}

func TestCollectFromConfig(t *testing.T) {
	dir := t.TempDir()
	useStore(t, dir, "json")
	root := filepath.Join(dir, "mini")
	writeDataset(t, root)
	viperSet(map[string]interface{}{
		"collect.root":   root,
		"collect.slices": "srcml-2016-02",
	})

	var out bytes.Buffer
	if err := runCollect(newCollectTestCmd(&out), nil); err != nil {
		t.Fatalf("runCollect() error = %v", err)
	}

	var res collect.Result
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out.String())
	}
	if res.Slices != 1 || res.Inserted != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestCollectLimit(t *testing.T) {
	dir := t.TempDir()
	dbPath := useStore(t, dir, "text")
	root := filepath.Join(dir, "mini")
	writeDataset(t, root)

	var out bytes.Buffer
	cmd := newCollectTestCmd(&out)
	_ = cmd.Flags().Set("root", root)
	_ = cmd.Flags().Set("limit", "1")

	if err := runCollect(cmd, nil); err != nil {
		t.Fatalf("runCollect() error = %v", err)
	}
	if n := countMessages(t, dbPath); n != 2 {
		t.Errorf("store holds %d messages, want 2", n)
	}
}

func TestCollectMissingRoot(t *testing.T) {
	dir := t.TempDir()
	useStore(t, dir, "text")

	var out bytes.Buffer
	cmd := newCollectTestCmd(&out)
	_ = cmd.Flags().Set("root", filepath.Join(dir, "nope"))

	if err := runCollect(cmd, nil); err == nil {
		t.Fatal("expected error for missing root")
	}
}
