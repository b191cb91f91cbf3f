package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
	"github.com/kr/pretty"

	"github.com/xdrpp/rxgen"
	"github.com/xdrpp/rxgen/idl"
	"github.com/xdrpp/rxgen/phase"
)

type planCmd struct {
	configFlags
	verbose        bool
	stdout, stderr io.Writer
}

func (*planCmd) Name() string {
	return "plan"
}

func (*planCmd) Usage() string {
	return "plan [flags] file.xg...\n"
}

func (*planCmd) Synopsis() string {
	return "print the decode phases of every procedure"
}

func (cmd *planCmd) SetFlags(f *flag.FlagSet) {
	cmd.registerConfig(f)
	f.BoolVar(&cmd.verbose, "v", false, "print every phase in detail")
}

func (cmd *planCmd) Execute(ctx context.Context, f *flag.FlagSet,
	_ ...interface{}) subcommands.ExitStatus {
	if cmd.stdout == nil {
		cmd.stdout = os.Stdout
	}
	if cmd.stderr == nil {
		cmd.stderr = os.Stderr
	}
	return exitStatus(cmd.stderr, f, cmd.run(cmd.stdout, f.Args()))
}

// One phase as shown by plan -v.
type phaseSummary struct {
	ID     int
	Form   string
	Size   uint32
	Fields []string
	Target string
}

func summarize(pl *phase.Plan) []phaseSummary {
	ret := make([]phaseSummary, 0, len(pl.Phases))
	for _, ph := range pl.Phases {
		s := phaseSummary{ID: ph.ID, Form: ph.Form.String(), Size: ph.Size}
		for _, m := range ph.Fields {
			s.Fields = append(s.Fields, m.Name)
		}
		if ph.Target != nil {
			s.Target = ph.Target.Name
		}
		ret = append(ret, s)
	}
	return ret
}

func (cmd *planCmd) show(w io.Writer, label string, pl *phase.Plan) {
	fmt.Fprintf(w, "  %s: %s\n", label, pl)
	if cmd.verbose {
		fmt.Fprintf(w, "%# v\n", pretty.Formatter(summarize(pl)))
	}
}

func (cmd *planCmd) run(w io.Writer, files []string) error {
	if len(files) == 0 {
		return errUsage
	}
	conf, err := cmd.load()
	if err != nil {
		return err
	}
	srcs, err := rxgen.ReadSources(files)
	if err != nil {
		return err
	}
	reg, err := rxgen.Parse(srcs, conf)
	if err != nil {
		return err
	}

	opts := phase.Options{Chunk: conf.Decode.ChunkSize}
	for _, t := range idl.Reachable(reg).Structs(reg) {
		if _, ok := t.FixedSize(); ok {
			continue
		}
		pl, err := phase.Build(t.Members, opts)
		if err != nil {
			return fmt.Errorf("%s: %w", t.Name, err)
		}
		fmt.Fprintf(w, "struct %s\n", t.Name)
		cmd.show(w, "decode", pl)
	}
	plans, err := rxgen.Plans(reg, conf)
	if err != nil {
		return err
	}
	for _, pp := range plans {
		p := pp.Proc
		flags := ""
		if p.Split {
			flags = " split"
		} else if p.Multi {
			flags = " multi"
		}
		fmt.Fprintf(w, "proc %s opcode %d%s\n", p.Name, p.Opcode.Value, flags)
		cmd.show(w, "request", pp.Request)
		cmd.show(w, "response", pp.Response)
	}
	return nil
}
