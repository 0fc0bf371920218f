package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregLibert/eid-sim/pkg/iso7816"
	"github.com/gregLibert/eid-sim/pkg/server"
)

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, ":9876", cfg.Listen)
	assert.True(t, cfg.Metrics)

	path := filepath.Join(t.TempDir(), "eidsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http: \":8080\"\nverbose: 2\nmetrics: false\n"), 0o600))
	cfg, err = loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9876", cfg.Listen)
	assert.Equal(t, ":8080", cfg.HTTP)
	assert.Equal(t, 2, cfg.Verbose)
	assert.False(t, cfg.Metrics)

	require.NoError(t, os.WriteFile(path, []byte("listen: \"\"\n"), 0o600))
	_, err = loadConfig(path)
	assert.Error(t, err)

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseAPDUs(t *testing.T) {
	cmds, err := parseAPDUs([]string{"00 A4 00 0C 02 3F 00", "00B09C0000"})
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	assert.Equal(t, iso7816.INS_SELECT, cmds[0].Instruction.Raw)
	assert.Equal(t, iso7816.INS_READ_BINARY, cmds[1].Instruction.Raw)

	_, err = parseAPDUs([]string{"00A4"})
	assert.Error(t, err)
	_, err = parseAPDUs([]string{"XYZ"})
	assert.Error(t, err)
}

func TestSend_InProcessAndRemote(t *testing.T) {
	cfg = defaultConfig()
	proc, err := cfg.buildCard()
	require.NoError(t, err)

	cmds, err := parseAPDUs([]string{"00 B0 9C 00 00"})
	require.NoError(t, err)

	var local bytes.Buffer
	require.NoError(t, exchange(&local, iso7816.NewClient(proc), cmds))
	assert.Contains(t, local.String(), "[9000]")

	srv := server.New(proc)
	ln := listen(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.ServeTerminals(ctx, ln)

	remote, err := dialSimulator(ln.Addr().String())
	require.NoError(t, err)
	defer remote.Close()

	var out bytes.Buffer
	require.NoError(t, exchange(&out, iso7816.NewClient(remote), cmds))
	assert.Equal(t, local.String(), out.String())
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return ln
}
