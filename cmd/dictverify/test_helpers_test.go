package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

type cliTestEnv struct {
	configPath string
	dictDir    string
	stateDir   string
	dataDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("DICTVERIFY_DICTIONARY_DIR", "")

	env := &cliTestEnv{
		configPath: filepath.Join(homeDir, ".config", "dictverify", "config.toml"),
		dictDir:    filepath.Join(base, "dictionaries"),
		stateDir:   filepath.Join(base, "state"),
		dataDir:    filepath.Join(base, "downloads"),
	}
	for _, dir := range []string{filepath.Dir(env.configPath), env.dictDir, env.dataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	content := fmt.Sprintf(`[paths]
dictionary_dir = %q
state_dir = %q
log_dir = %q

[verify]
low_priority = false
chunk_size_kib = 1

[logging]
level = "error"
`, env.dictDir, env.stateDir, filepath.Join(env.stateDir, "logs"))
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// writeVolumeFile creates a data file of size bytes under dir.
func writeVolumeFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	data := bytes.Repeat([]byte("dictionary-article\n"), size/19+1)[:size]
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write volume: %v", err)
	}
	return path
}

var dictionaryIDPattern = regexp.MustCompile(`Dictionary ID: ([0-9a-f-]{36})`)

func addVolume(t *testing.T, env *cliTestEnv, path string, extra ...string) string {
	t.Helper()
	out, _, err := runCLI(t, append([]string{"add", path}, extra...), env.configPath)
	if err != nil {
		t.Fatalf("add %s: %v", path, err)
	}
	match := dictionaryIDPattern.FindStringSubmatch(out)
	if match == nil {
		t.Fatalf("add output missing dictionary id: %q", out)
	}
	return match[1]
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
