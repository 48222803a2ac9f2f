package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalog = `ISS (ZARYA)
1 25544U 98067A   25045.18032407  .00016717  00000+0  30099-3 0  9996
2 25544  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495057
NOAA 18
1 28654U 05018A   24101.61302755 -.00000084  00000-0  00000+0 0  9998
2 28654  99.0520 135.3117 0013847 175.4411 184.6924 14.13157221 97545
BROKEN
1 99999U 98067A   25045.18032407  .00016717  00000+0  30099-3 0  9990
2 99999  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495057
`

func writeCatalog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "active.tle")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestParse(t *testing.T) {
	path := writeCatalog(t)

	out, stderr, err := run(t, "parse", path)
	require.NoError(t, err)
	assert.Contains(t, out, "25544")
	assert.Contains(t, out, "NOAA 18")
	assert.NotContains(t, out, "99999")
	assert.Contains(t, out, "2 element sets")
	assert.Contains(t, stderr, "skipping invalid TLE entry")
}

func TestParseJSON(t *testing.T) {
	out, _, err := run(t, "--json", "parse", writeCatalog(t))
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.EqualValues(t, 25544, rows[0]["norad_id"])
	assert.InDelta(t, 1440/15.49874301, rows[0]["period_minutes"], 1e-6)
}

func TestPropagate(t *testing.T) {
	path := writeCatalog(t)
	for _, model := range []string{"secular", "sgp4"} {
		t.Run(model, func(t *testing.T) {
			out, _, err := run(t, "--catalog", path, "--model", model,
				"propagate", "--id", "25544", "--at", "2025-02-14T12:00:00Z")
			require.NoError(t, err)
			assert.Contains(t, out, "ISS (ZARYA) (25544)")
			assert.Contains(t, out, "TEME")
			assert.Contains(t, out, "ECEF")
			assert.Contains(t, out, "geodetic")
		})
	}
}

func TestPropagateErrors(t *testing.T) {
	path := writeCatalog(t)

	_, _, err := run(t, "--catalog", path, "propagate", "--id", "12345")
	assert.ErrorContains(t, err, "not in")

	_, _, err = run(t, "--catalog", path, "propagate", "--id", "25544", "--at", "noon")
	assert.ErrorContains(t, err, "RFC 3339")

	_, _, err = run(t, "--catalog", path, "--model", "kepler", "propagate", "--id", "25544")
	assert.ErrorContains(t, err, "unknown propagation model")

	_, _, err = run(t, "--catalog", path, "propagate")
	assert.Error(t, err, "--id is required")
}

func TestTrack(t *testing.T) {
	out, _, err := run(t, "--catalog", writeCatalog(t),
		"track", "--id", "25544", "--start", "2025-02-14T12:00:00Z", "--duration", "10m", "--step", "1m")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1+11)
	assert.True(t, strings.HasPrefix(lines[0], "time,"))
	assert.True(t, strings.HasPrefix(lines[1], "2025-02-14T12:00:00Z,"))
	assert.True(t, strings.HasPrefix(lines[11], "2025-02-14T12:10:00Z,"))
}

func TestTrackInvalidWindow(t *testing.T) {
	_, _, err := run(t, "--catalog", writeCatalog(t),
		"track", "--id", "25544", "--step", "0s")
	assert.ErrorContains(t, err, "invalid sampling window")
}

func TestPasses(t *testing.T) {
	out, _, err := run(t, "--catalog", writeCatalog(t),
		"passes", "--id", "25544", "--lat", "39.74", "--lon", "-104.99", "--alt", "1609",
		"--start", "2025-02-14T12:00:00Z", "--hours", "48", "--min-el", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "25544 ISS (ZARYA):")
	assert.Contains(t, out, "pass 0:")
	assert.Contains(t, out, "total passes:")
}
