package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
)

type configCmd struct {
	configFlags
	stdout, stderr io.Writer
}

func (*configCmd) Name() string {
	return "config"
}

func (*configCmd) Usage() string {
	return "config [flags] [section.key...]\n"
}

func (*configCmd) Synopsis() string {
	return "print the effective configuration or some of its settings"
}

func (cmd *configCmd) SetFlags(f *flag.FlagSet) {
	cmd.registerConfig(f)
	cmd.registerOutput(f)
}

func (cmd *configCmd) Execute(ctx context.Context, f *flag.FlagSet,
	_ ...interface{}) subcommands.ExitStatus {
	if cmd.stdout == nil {
		cmd.stdout = os.Stdout
	}
	if cmd.stderr == nil {
		cmd.stderr = os.Stderr
	}
	return exitStatus(cmd.stderr, f, cmd.run(cmd.stdout, f.Args()))
}

// With no names, print the whole configuration; otherwise print one
// value per line.
func (cmd *configCmd) run(w io.Writer, names []string) error {
	conf, err := cmd.load()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		if conf.Source != "" {
			fmt.Fprintf(w, "# %s\n", conf.Source)
		}
		fmt.Fprint(w, conf)
		return nil
	}
	for _, name := range names {
		val, err := conf.Get(name)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, val)
	}
	return nil
}
