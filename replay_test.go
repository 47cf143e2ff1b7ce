package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knob/encoder"
	"knob/wire"
)

func TestReplayGolden(t *testing.T) {
	tests := []struct {
		golden    string
		trace     string
		algorithm string
	}{
		{"right_left", "right_left", ""},
		{"fast", "fast", ""},
		{"button", "button", ""},
		{"bounce_precise", "bounce", "precise"},
		{"bounce_binary", "bounce", "binary"},
		{"bounce_fast", "bounce", "fast"},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, tt := range tests {
		t.Run(tt.golden, func(t *testing.T) {
			args := []string{"replay", "--no-config", "testdata/traces/" + tt.trace + ".trace"}
			if tt.algorithm != "" {
				args = append(args, "--algorithm", tt.algorithm)
			}
			var out bytes.Buffer
			cmd := newRootCommand()
			cmd.SetOut(&out)
			cmd.SetArgs(args)
			require.NoError(t, cmd.Execute())

			g.Assert(t, tt.golden, out.Bytes())
		})
	}
}

func TestReplayUsesConfig(t *testing.T) {
	path := writeConfig(t, `
client_id: test
encoder:
  direction: reverse
rotary:
  source: virtual
`)
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"replay", "--cfg", path, "testdata/traces/right_left.trace"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "1040 turn\n1040 left\n1130 turn\n1130 left\n1330 turn\n1330 right\n", out.String())
}

func TestReplayStdin(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("tick 5 1 1 1\ntick 10 1 1 0\n"))
	cmd.SetArgs([]string{"replay", "--no-config", "-"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "10 press\n", out.String())
}

func TestReplayErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		in   string
	}{
		{"missing trace", []string{"replay", "--no-config", "testdata/traces/nope.trace"}, ""},
		{"bad line", []string{"replay", "--no-config", "-"}, "tick 1 1 1\n"},
		{"bad algorithm", []string{"replay", "--no-config", "--algorithm", "magic", "-"}, ""},
		{"time goes back", []string{"replay", "--no-config", "-"}, "tick 10 1 1 1\ntick 9 1 1 1\n"},
		{"missing config", []string{"replay", "--cfg", "testdata/none.yaml", "-"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCommand()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetIn(strings.NewReader(tt.in))
			cmd.SetArgs(tt.args)
			assert.Error(t, cmd.Execute())
		})
	}
}

func TestReplayEmptyTrace(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, replay(nil, nil, &out))
	assert.Empty(t, out.String())
}

func TestReplayBoundsIdlePolling(t *testing.T) {
	// The hold still fires after a gap longer than the idle polling bound.
	ticks := []wire.Tick{
		{Millis: 0, Sample: wire.Sample{CLK: true, DT: true, SW: true}},
		{Millis: 10, Sample: wire.Sample{CLK: true, DT: true}},
		{Millis: 10 + 2*maxIdleSteps, Sample: wire.Sample{CLK: true, DT: true, SW: true}},
	}
	var out bytes.Buffer
	require.NoError(t, replay(ticks, []encoder.Option{encoder.WithHoldTimeout(100)}, &out))

	assert.Equal(t, "10 press\n111 hold\n120010 release\n", out.String())
}
