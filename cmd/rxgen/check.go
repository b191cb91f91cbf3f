package main

import (
	"context"
	"flag"
	"io"
	"os"

	"github.com/google/subcommands"

	"github.com/xdrpp/rxgen"
)

type checkCmd struct {
	configFlags
	stderr io.Writer
}

func (*checkCmd) Name() string {
	return "check"
}

func (*checkCmd) Usage() string {
	return "check [flags] dir file.xg...\n"
}

func (*checkCmd) Synopsis() string {
	return "verify that generated files in dir match their inputs"
}

func (cmd *checkCmd) SetFlags(f *flag.FlagSet) {
	cmd.registerConfig(f)
	cmd.registerOutput(f)
}

func (cmd *checkCmd) Execute(ctx context.Context, f *flag.FlagSet,
	_ ...interface{}) subcommands.ExitStatus {
	if cmd.stderr == nil {
		cmd.stderr = os.Stderr
	}
	return exitStatus(cmd.stderr, f, cmd.run(f.Args()))
}

func (cmd *checkCmd) run(args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	conf, err := cmd.load()
	if err != nil {
		return err
	}
	srcs, err := rxgen.ReadSources(args[1:])
	if err != nil {
		return err
	}
	return rxgen.Check(args[0], srcs, conf)
}
