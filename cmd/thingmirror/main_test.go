package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thingmirror/pkg/ui"
)

func newThingServer(t *testing.T) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/things/2":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"id":         2,
				"name":       "Benchy",
				"images_url": server.URL + "/things/2/images",
				"files_url":  server.URL + "/things/2/files",
			})
		case "/things/2/images":
			_, _ = w.Write([]byte("[]"))
		case "/things/2/files":
			_ = json.NewEncoder(w).Encode([]map[string]interface{}{
				{"id": 1, "name": "benchy.stl", "public_url": server.URL + "/download/benchy.stl"},
			})
		case "/download/benchy.stl":
			_, _ = w.Write([]byte("solid benchy"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestMirrorAndStatusCommands(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	server := newThingServer(t)
	output := filepath.Join(t.TempDir(), "content")

	out, err := execute(t, "mirror",
		"--token", "secret",
		"--base-url", server.URL,
		"--output", output,
		"--end", "4",
		"--workers", "2",
		"--progress", "0",
	)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Mirror finished")
	assert.Contains(t, out, "Things mirrored")

	data, err := os.ReadFile(filepath.Join(output, "0", "2", "files", "benchy.stl"))
	require.NoError(t, err)
	assert.Equal(t, "solid benchy", string(data))
	assert.FileExists(t, filepath.Join(output, "0", "2", "info.json"))
	assert.FileExists(t, filepath.Join(output, "index"))

	out, err = execute(t, "status", "--output", output)
	require.NoError(t, err, out)
	assert.Contains(t, out, "checkpoint")
	assert.Contains(t, out, "no")
}

func TestMirrorStopsAtOnceOnRejectedToken(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "invalid token", http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)
	output := filepath.Join(t.TempDir(), "content")

	out, err := execute(t, "mirror",
		"--token", "expired",
		"--base-url", server.URL,
		"--output", output,
		"--end", "4",
		"--workers", "1",
		"--progress", "0",
	)
	require.Error(t, err)
	assert.Contains(t, out, "auth login")
	assert.Equal(t, int32(1), hits.Load(), "a rejected token is not retried")
	assert.NoFileExists(t, filepath.Join(output, "index"))
}

func TestGlobalFlagsPreferExplicitLevel(t *testing.T) {
	defer func() { logLevel, verbosity, logFile = "", 0, "" }()

	verbosity = 2
	assert.Equal(t, "debug", globalFlags()["log-level"])

	logLevel = "error"
	assert.Equal(t, "error", globalFlags()["log-level"])

	logLevel, verbosity = "", 0
	_, ok := globalFlags()["log-level"]
	assert.False(t, ok)
}

func TestPrintSummaryListsUnfinishedIds(t *testing.T) {
	var buf bytes.Buffer
	printSummary(ui.NewPrinter(&buf), ui.Snapshot{Things: 3, LastCommitted: 7, HasCommitted: true}, []uint64{8, 11}, 0)

	out := buf.String()
	assert.Contains(t, out, "Unfinished ids")
	assert.Contains(t, out, fmt.Sprint([]uint64{8, 11}))
	assert.True(t, strings.Contains(out, "7"))
}
