package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rollscan/internal/layout"
	"rollscan/internal/testsupport"
)

type cliTestEnv struct {
	baseDir    string
	configPath string
	rollsDir   string
	logDir     string
	server     *httptest.Server
}

// setupCLITestEnv starts a stub purl server, installs stub tool binaries on
// PATH, and writes a config file pointing everything at temp directories.
func setupCLITestEnv(t *testing.T, druids ...string) *cliTestEnv {
	t.Helper()

	env := &cliTestEnv{}
	known := make(map[string]bool, len(druids))
	for _, druid := range druids {
		known[druid] = true
	}

	env.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/iiif/manifest"):
			druid := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/"), "/iiif/manifest")
			if !known[druid] {
				http.NotFound(w, r)
				return
			}
			fmt.Fprintf(w, `{
				"label": "Test roll %s",
				"metadata": [{"label": "Roll type", "value": "Welte-Mignon red roll (T-100)."}],
				"sequences": [{"rendering": [
					{"@id": "%s/images/%s_0001_gr.tiff", "format": "image/x-tiff-big"}
				]}]
			}`, druid, env.server.URL, druid)
		case strings.HasPrefix(r.URL.Path, "/images/"):
			w.Write([]byte("fake tiff bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(env.server.Close)

	env.baseDir = t.TempDir()
	env.rollsDir = filepath.Join(env.baseDir, "rolls")
	env.logDir = filepath.Join(env.baseDir, "logs")

	binDir := filepath.Join(env.baseDir, "bin")
	report := testsupport.AnalysisReport("4d 54 68 64 raw", "4d 54 68 64 note")
	testsupport.StubTool(t, binDir, "tiff2holes", "#!/bin/sh\ncat <<'REPORT'\n"+report+"REPORT\n")
	testsupport.StubTool(t, binDir, "binasc", "#!/bin/sh\nif [ \"$2\" = \"-c\" ]; then cp \"$1\" \"$3\"; else cat \"$1\"; fi\n")
	testsupport.StubTool(t, binDir, "midi2exp", "#!/bin/sh\ncp \"$4\" \"$5\"\n")
	testsupport.PrependPath(t, binDir)

	env.configPath = filepath.Join(env.baseDir, "config.toml")
	content := fmt.Sprintf(
		"[paths]\nroot_dir = %q\nlog_dir = %q\n\n[download]\npurl_base = %q\nbackoff_seconds = 1\n\n[process]\nworkers = 1\n",
		env.rollsDir,
		env.logDir,
		env.server.URL,
	)
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

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func TestCLIProcessCommand(t *testing.T) {
	env := setupCLITestEnv(t, "hk155fw7898")

	out, _, err := runCLI(t, []string{"process", "hk155fw7898"}, env.configPath)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	requireContains(t, out, "hk155fw7898")
	requireContains(t, out, "completed")
	requireContains(t, out, "welte-red")

	lay := layout.New(env.rollsDir)
	for _, kind := range layout.Kinds() {
		if !lay.Complete("hk155fw7898", kind) {
			t.Fatalf("expected %s artifact after process", kind)
		}
	}

	out, _, err = runCLI(t, []string{"journal", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("journal list: %v", err)
	}
	requireContains(t, out, "hk155fw7898")
	requireContains(t, out, "completed")

	out, _, err = runCLI(t, []string{"journal", "invocations", "--druid", "hk155fw7898"}, env.configPath)
	if err != nil {
		t.Fatalf("journal invocations: %v", err)
	}
	requireContains(t, out, "tiff2holes")
	requireContains(t, out, "binasc")

	out, _, err = runCLI(t, []string{"journal", "clear"}, env.configPath)
	if err != nil {
		t.Fatalf("journal clear: %v", err)
	}
	requireContains(t, out, "Journal cleared")

	out, _, err = runCLI(t, []string{"journal", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("journal list after clear: %v", err)
	}
	requireContains(t, out, "No recorded runs")
}

func TestCLIProcessFailureSetsExitError(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"process", "zz999zz9999"}, env.configPath)
	if err == nil {
		t.Fatal("expected error for unknown druid")
	}
	requireContains(t, err.Error(), "1 of 1 rolls failed")
	requireContains(t, out, "failed")
}

func TestCLIProcessRejectsUnknownRollType(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"process", "--roll-type", "bogus", "hk155fw7898"}, env.configPath)
	if err == nil {
		t.Fatal("expected error for unknown roll type")
	}
	requireContains(t, err.Error(), "unknown roll type")
}

func TestCLIProcessRequiresDruids(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"process"}, env.configPath)
	if err == nil {
		t.Fatal("expected error when no druids given")
	}
	requireContains(t, err.Error(), "no druids")
}

func TestCLIProcessMergesDruidSources(t *testing.T) {
	env := setupCLITestEnv(t, "aa111bb2222", "cc333dd4444")

	listPath := filepath.Join(env.baseDir, "druids.txt")
	if err := os.WriteFile(listPath, []byte("aa111bb2222\ncc333dd4444\n"), 0o644); err != nil {
		t.Fatalf("write druids file: %v", err)
	}

	out, _, err := runCLI(t, []string{"process", "aa111bb2222", "--druids-file", listPath}, env.configPath)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if got := strings.Count(out, "aa111bb2222"); got != 1 {
		t.Fatalf("expected one result row for duplicated druid, counted %d", got)
	}
	requireContains(t, out, "cc333dd4444")
}

func TestCLIPathsCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"paths", "hk155fw7898"}, env.configPath)
	if err != nil {
		t.Fatalf("paths: %v", err)
	}
	requireContains(t, out, "Manifest")
	requireContains(t, out, "Note Midi")
	requireContains(t, out, env.rollsDir)
	requireContains(t, out, "no")
}

func TestCLITypesCommand(t *testing.T) {
	out, _, err := runCLI(t, []string{"types"}, "")
	if err != nil {
		t.Fatalf("types: %v", err)
	}
	requireContains(t, out, "welte-red")
	requireContains(t, out, "65-note")
	requireContains(t, out, "-5")
	requireContains(t, out, "yes")
	requireContains(t, out, "no")
}
