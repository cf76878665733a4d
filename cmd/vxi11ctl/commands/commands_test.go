package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/vxi11/internal/rpctest"
)

// run executes vxi11ctl against lab with an isolated configuration
// directory and returns stdout.
func run(t *testing.T, lab *rpctest.Lab, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	app := &App{}
	if lab != nil {
		app.dialContext = lab.DialContext
	}

	var out bytes.Buffer
	cmd := newRootCmd(app)
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(append(args, "--log-level", "ERROR", "--no-color"))

	err := cmd.Execute()
	return out.String(), err
}

func TestQuery(t *testing.T) {
	lab := rpctest.StartLab(t)

	t.Run("json", func(t *testing.T) {
		out, err := run(t, lab, "query", "scope", "*IDN?", "-o", "json")
		require.NoError(t, err)

		var res map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.Equal(t, "scope", res["host"])
		assert.Equal(t, "instr", res["device"])
		assert.Equal(t, "*IDN?", res["command"])
		assert.Equal(t, "RPCTEST,FAKE-INSTRUMENT,0,1.0", res["response"])
		assert.Equal(t, float64(len(rpctest.Identification)), res["bytes"])
	})

	t.Run("raw", func(t *testing.T) {
		out, err := run(t, lab, "query", "scope", "*IDN?", "-o", "raw")
		require.NoError(t, err)
		assert.Equal(t, rpctest.Identification, out)
	})

	t.Run("table", func(t *testing.T) {
		out, err := run(t, lab, "query", "scope", "MEAS:VOLT?", "--device", "gpib0,5")
		require.NoError(t, err)
		assert.Contains(t, out, "RESPONSE")
		assert.Contains(t, out, "gpib0,5")
		assert.Contains(t, out, "MEAS:VOLT?")
	})

	// Every invocation destroys its link.
	assert.Equal(t, 0, lab.Instrument.OpenLinks())
}

func TestWrite(t *testing.T) {
	lab := rpctest.StartLab(t)

	_, err := run(t, lab, "write", "scope", "*RST")
	require.NoError(t, err)

	_, err = run(t, lab, "write", "scope", "-n", "CONF:VOLT")
	require.NoError(t, err)

	msgs := lab.Instrument.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, []byte("*RST\n"), msgs[0])
	assert.Equal(t, []byte("CONF:VOLT"), msgs[1])
}

func TestControl(t *testing.T) {
	lab := rpctest.StartLab(t)
	lab.Instrument.SetSTB(0x41)

	out, err := run(t, lab, "control", "scope", "stb")
	require.NoError(t, err)
	assert.Contains(t, out, "0x41")

	out, err = run(t, lab, "control", "scope", "clear", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"action": "clear"`)

	_, err = run(t, lab, "control", "scope", "explode")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action")
}

func TestControlActions(t *testing.T) {
	lab := rpctest.StartLab(t)

	for _, action := range []string{"trigger", "clear", "remote", "local", "lock", "unlock"} {
		t.Run(action, func(t *testing.T) {
			out, err := run(t, lab, "control", "scope", action, "-o", "json")
			require.NoError(t, err)
			assert.Contains(t, out, `"action": "`+action+`"`)
		})
	}
	assert.Len(t, controlActions, 6)
}

func TestRemoteErrorFailsCommand(t *testing.T) {
	lab := rpctest.StartLab(t)
	lab.Instrument.SetCreateLinkError(3)

	_, err := run(t, lab, "query", "scope", "*IDN?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to link to scope")
}

func TestResolve(t *testing.T) {
	lab := rpctest.StartLab(t)

	out, err := run(t, lab, "resolve", "scope", "-o", "json")
	require.NoError(t, err)

	var res ResolveResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, uint16(lab.Core.Port()), res.Port)
	assert.Equal(t, "tcp", res.Protocol)

	_, err = run(t, lab, "resolve", "scope", "--protocol", "udp")
	require.Error(t, err)

	_, err = run(t, lab, "resolve", "scope", "--protocol", "sctp")
	require.Error(t, err)
}

func TestDump(t *testing.T) {
	lab := rpctest.StartLab(t)

	out, err := run(t, lab, "dump", "scope")
	require.NoError(t, err)
	assert.Contains(t, out, "vxi11-core")
	assert.Contains(t, out, strconv.Itoa(lab.Core.Port()))
}

func TestPoll(t *testing.T) {
	lab := rpctest.StartLab(t)

	out, err := run(t, lab, "poll", "scope", "--count", "3", "--interval", "5ms")
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out, "RPCTEST,FAKE-INSTRUMENT"))
	assert.Len(t, lab.Instrument.CreateLinks(), 1)
	assert.Equal(t, 0, lab.Instrument.OpenLinks())
}

func TestFlagOverridesAreValidated(t *testing.T) {
	_, err := run(t, nil, "query", "scope", "*IDN?", "--transport", "udp")
	require.Error(t, err)

	_, err = run(t, nil, "query", "scope", "*IDN?", "--term-char", "ab")
	require.Error(t, err)

	_, err = run(t, nil, "query", "scope", "*IDN?", "-o", "xml")
	require.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := run(t, nil, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestConfigCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vxi11.yaml")

	out, err := run(t, nil, "config", "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	require.FileExists(t, path)

	_, err = run(t, nil, "config", "init", "--config", path)
	require.Error(t, err, "init must not overwrite without --force")

	_, err = run(t, nil, "config", "init", "--config", path, "--force")
	require.NoError(t, err)

	out, err = run(t, nil, "config", "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Validation: OK")
	assert.Regexp(t, `Device:\s+instr`, out)

	out, err = run(t, nil, "config", "show", "--config", path, "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"Connection"`)

	out, err = run(t, nil, "config", "schema")
	require.NoError(t, err)
	assert.Contains(t, out, `"connection"`)
	assert.Contains(t, out, `"max_recv_size"`)

	require.NoError(t, os.WriteFile(path, []byte("connection:\n  transport: udp\n"), 0644))
	_, err = run(t, nil, "config", "validate", "--config", path)
	require.Error(t, err)
}
