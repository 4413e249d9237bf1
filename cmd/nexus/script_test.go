package main

import (
	"bytes"
	"context"
	"testing"

	"rsc.io/script"
	"rsc.io/script/scripttest"
)

// nexusCmd lets a script (testdata/script/*.txt) drive cmd/nexus in
// process instead of shelling out to a built binary, mirroring how
// cmd/go's own rsc.io/script-based acceptance tests invoke `go` itself
// without a subprocess per step.
func nexusCmd() script.Cmd {
	return script.Command(
		script.CmdUsage{
			Summary: "run the nexus CLI",
			Args:    "args...",
		},
		func(s *script.State, args ...string) (script.WaitFunc, error) {
			var out bytes.Buffer
			cmd := newRootCmd()
			cmd.SetOut(&out)
			cmd.SetErr(&out)
			cmd.SetArgs(append([]string{"--dir", s.Getwd()}, args...))
			runErr := cmd.Execute()
			return func(*script.State) (string, string, error) {
				return out.String(), "", runErr
			}, nil
		},
	)
}

func newEngine() *script.Engine {
	cmds := script.DefaultCmds()
	cmds["nexus"] = nexusCmd()
	return &script.Engine{
		Cmds:  cmds,
		Conds: script.DefaultConds(),
	}
}

// TestScripts runs every testdata/script/*.txt file end to end: each one
// opens a fresh database directory (the script's working directory) and
// drives it through a sequence of `nexus` invocations, matching spec.md
// §8's end-to-end scenarios.
func TestScripts(t *testing.T) {
	scripttest.Test(t, context.Background(), newEngine(), nil, "testdata/script/*.txt")
}
