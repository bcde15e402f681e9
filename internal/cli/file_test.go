// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-protectedfs.
//
// go-protectedfs is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// run executes the command tree against root and returns what it printed.
func run(t *testing.T, root, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(strings.NewReader(stdin), &out)
	cmd.SetArgs(append([]string{"--root", root, "--kdk-hex", testKDKHex}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, root, stdin string, args ...string) string {
	t.Helper()
	out, err := run(t, root, stdin, args...)
	if err != nil {
		t.Fatalf("pfs %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestWriteAndCat(t *testing.T) {
	root := t.TempDir()

	out := mustRun(t, root, "hello world", "write", "notes.pfs")
	if out != "Wrote 11 bytes to notes.pfs (size 11)\n" {
		t.Errorf("write output = %q", out)
	}
	if got := mustRun(t, root, "", "cat", "notes.pfs"); got != "hello world" {
		t.Errorf("cat = %q, want %q", got, "hello world")
	}

	mustRun(t, root, "!", "write", "--append", "notes.pfs")
	mustRun(t, root, "WORLD", "write", "--offset", "6", "notes.pfs")
	if got := mustRun(t, root, "", "cat", "notes.pfs"); got != "hello WORLD!" {
		t.Errorf("cat = %q, want %q", got, "hello WORLD!")
	}
	if got := mustRun(t, root, "", "cat", "--offset", "6", "--length", "5", "notes.pfs"); got != "WORLD" {
		t.Errorf("cat range = %q, want WORLD", got)
	}

	mustRun(t, root, "new", "write", "--replace", "notes.pfs")
	if got := mustRun(t, root, "", "cat", "notes.pfs"); got != "new" {
		t.Errorf("cat after replace = %q, want new", got)
	}

	// Nothing on disk is plaintext.
	raw, err := os.ReadFile(filepath.Join(root, "notes.pfs"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(raw) != 4096 || bytes.Contains(raw, []byte("new")) {
		t.Errorf("host file is %d bytes, plaintext visible = %v", len(raw), bytes.Contains(raw, []byte("new")))
	}
}

func TestWriteFromInputFile(t *testing.T) {
	root := t.TempDir()
	input := filepath.Join(t.TempDir(), "plain.txt")
	data := bytes.Repeat([]byte("0123456789"), 1000)
	if err := os.WriteFile(input, data, 0600); err != nil {
		t.Fatal(err)
	}

	mustRun(t, root, "", "write", "--input", input, "big.pfs")
	if got := mustRun(t, root, "", "cat", "big.pfs"); got != string(data) {
		t.Errorf("cat returned %d bytes, want %d", len(got), len(data))
	}
}

func TestWriteRejectsAppendWithOffset(t *testing.T) {
	if _, err := run(t, t.TempDir(), "x", "write", "--append", "--offset", "3", "a.pfs"); err == nil {
		t.Error("write --append --offset should fail")
	}
}

func TestCatMissingFile(t *testing.T) {
	if _, err := run(t, t.TempDir(), "", "cat", "missing.pfs"); err == nil {
		t.Error("cat of a missing file should fail")
	}
}

func TestWrongKDK(t *testing.T) {
	root := t.TempDir()
	mustRun(t, root, "secret", "write", "a.pfs")

	var out bytes.Buffer
	cmd := newRootCmd(strings.NewReader(""), &out)
	cmd.SetArgs([]string{"--root", root, "--kdk-hex", "ffffffffffffffffffffffffffffffff", "cat", "a.pfs"})
	if err := cmd.Execute(); err == nil {
		t.Error("cat with the wrong KDK should fail")
	}
	if out.Len() != 0 {
		t.Errorf("cat printed %q with the wrong KDK", out.String())
	}
}

func TestVerifyAndInfo(t *testing.T) {
	root := t.TempDir()
	mustRun(t, root, strings.Repeat("x", 10000), "write", "data.pfs")

	out := mustRun(t, root, "", "verify", "data.pfs")
	if !strings.Contains(out, "data.pfs verified: 10000 bytes") {
		t.Errorf("verify output = %q", out)
	}

	out = mustRun(t, root, "", "-o", "json", "info", "data.pfs")
	var info struct {
		File struct {
			Name      string `json:"name"`
			Size      int64  `json:"size"`
			DataNodes uint64 `json:"data_nodes"`
			Status    string `json:"status"`
		} `json:"file"`
		Acceleration string `json:"acceleration"`
	}
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("invalid json %q: %v", out, err)
	}
	if info.File.Name != "data.pfs" || info.File.Size != 10000 {
		t.Errorf("info = %+v", info.File)
	}
	// 3072 bytes live in the metadata node, the rest in two data nodes.
	if info.File.DataNodes != 2 {
		t.Errorf("DataNodes = %d, want 2", info.File.DataNodes)
	}
	if info.Acceleration == "" {
		t.Error("acceleration missing")
	}

	out = mustRun(t, root, "", "info", "data.pfs")
	if !strings.Contains(out, "Size:          10000 bytes") {
		t.Errorf("info text output = %q", out)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	root := t.TempDir()
	mustRun(t, root, strings.Repeat("y", 5000), "write", "t.pfs")

	path := filepath.Join(root, "t.pfs")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// Flip a bit in the ciphertext of the first data node.
	raw[2*4096+100] ^= 0x01
	if err := os.WriteFile(path, raw, 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := run(t, root, "", "verify", "t.pfs"); err == nil {
		t.Error("verify should fail on a tampered file")
	}
}

func TestRecover(t *testing.T) {
	root := t.TempDir()
	mustRun(t, root, "keep me", "write", "r.pfs")

	out := mustRun(t, root, "", "recover", "r.pfs")
	if !strings.Contains(out, "nothing to do") {
		t.Errorf("recover output = %q", out)
	}

	// A torn log left behind by a crash is discarded.
	logPath := filepath.Join(root, "r.pfs_recovery")
	if err := os.WriteFile(logPath, []byte("PFSJ"), 0600); err != nil {
		t.Fatal(err)
	}
	out = mustRun(t, root, "", "recover", "r.pfs")
	if !strings.Contains(out, "recovery log resolved") {
		t.Errorf("recover output = %q", out)
	}
	if _, err := os.Stat(logPath); !os.IsNotExist(err) {
		t.Errorf("recovery log still present: %v", err)
	}
	if got := mustRun(t, root, "", "cat", "r.pfs"); got != "keep me" {
		t.Errorf("cat after recover = %q", got)
	}
}

func TestRecoverRefusesWithoutRecovery(t *testing.T) {
	root := t.TempDir()
	mustRun(t, root, "data", "write", "r.pfs")
	if _, err := run(t, root, "", "--no-recovery", "recover", "r.pfs"); err == nil {
		t.Error("recover --no-recovery should fail")
	}
}

func TestVersion(t *testing.T) {
	out := mustRun(t, t.TempDir(), "", "version")
	if !strings.Contains(out, "pfs version") || !strings.Contains(out, "aes128-gcm") {
		t.Errorf("version output = %q", out)
	}

	out = mustRun(t, t.TempDir(), "", "-o", "json", "version")
	var v map[string]interface{}
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if v["cipher"] != "aes128-gcm" {
		t.Errorf("cipher = %v", v["cipher"])
	}
}
