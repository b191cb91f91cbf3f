package main

import (
	"context"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"github.com/google/subcommands"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/xdrpp/rxgen"
)

type compileCmd struct {
	configFlags
	each   bool
	jobs   int
	stderr io.Writer
}

func (*compileCmd) Name() string {
	return "compile"
}

func (*compileCmd) Usage() string {
	return "compile [flags] file.xg...\n"
}

func (*compileCmd) Synopsis() string {
	return "compile IDL files into Go wire code and bindings"
}

func (cmd *compileCmd) SetFlags(f *flag.FlagSet) {
	cmd.registerConfig(f)
	cmd.registerOutput(f)
	f.StringVar(&cmd.dir, "o", "", "output `directory`")
	f.BoolVar(&cmd.each, "each", false,
		"compile every file as its own unit, in a subdirectory named after the file")
	f.IntVar(&cmd.jobs, "j", 4, "compile up to `n` units at once")
}

func (cmd *compileCmd) Execute(ctx context.Context, f *flag.FlagSet,
	_ ...interface{}) subcommands.ExitStatus {
	if cmd.stderr == nil {
		cmd.stderr = os.Stderr
	}
	return exitStatus(cmd.stderr, f, cmd.run(ctx, f.Args()))
}

// The name of the unit compiled from file alone.
func unitName(file string) string {
	base := filepath.Base(file)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Compile every unit, then write the output only if all of them
// succeeded.
func (cmd *compileCmd) run(ctx context.Context, files []string) error {
	if len(files) == 0 {
		return errUsage
	}
	conf, err := cmd.load()
	if err != nil {
		return err
	}
	units := [][]string{files}
	if cmd.each {
		units = units[:0]
		for _, file := range files {
			units = append(units, []string{file})
		}
	}
	jobs := cmd.jobs
	if jobs < 1 {
		jobs = 1
	}

	outs := make([]*rxgen.Output, len(units))
	dirs := make([]string, len(units))
	sem := make(chan struct{}, jobs)
	g, ctx := errgroup.WithContext(ctx)
	for i, unit := range units {
		i, unit := i, unit
		uconf := *conf
		dirs[i] = conf.Output.Dir
		if cmd.each {
			uconf.Output.Basename = unitName(unit[0])
			dirs[i] = filepath.Join(dirs[i], uconf.Output.Basename)
		}
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			defer func() { <-sem }()
			glog.V(1).Infof("compiling %s", strings.Join(unit, " "))
			srcs, err := rxgen.ReadSources(unit)
			if err != nil {
				return err
			}
			outs[i], err = rxgen.Compile(srcs, &uconf)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, out := range outs {
		err = multierr.Append(err, out.WriteFiles(dirs[i]))
	}
	return err
}
