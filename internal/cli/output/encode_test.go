package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapping struct {
	Program uint32 `json:"program" yaml:"program"`
	Port    uint32 `json:"port" yaml:"port"`
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, []mapping{{Program: 100000, Port: 111}, {Program: 395183, Port: 1024}}))

	out := buf.String()
	assert.Contains(t, out, `"program": 100000`)
	assert.Contains(t, out, `"port": 1024`)
}

func TestPrintYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintYAML(&buf, []mapping{{Program: 100000, Port: 111}}))

	assert.Equal(t, "- program: 100000\n  port: 111\n", buf.String())
}
