// The rxgen command compiles RPC interface definitions into Go wire
// code and dynamic bindings.
//
//	rxgen compile [-o dir] [-p pkg] [-config file] file.xg...
//	rxgen plan file.xg...
//	rxgen check dir file.xg...
//	rxgen config [section.key...]
//
// Run "rxgen help" for the full list of commands and flags.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/golang/glog"
	"github.com/google/subcommands"
	"go.uber.org/multierr"

	"github.com/xdrpp/rxgen"
	"github.com/xdrpp/rxgen/idl"
)

var progname = "rxgen"

var errUsage = errors.New("missing arguments")

// Print err on w.  IDL diagnostics are printed as they are, one per
// line; other errors are prefixed with the program name.
func report(w io.Writer, err error) {
	var pe idl.ParseErrors
	if errors.As(err, &pe) {
		for _, e := range pe {
			fmt.Fprintln(w, e)
		}
		return
	}
	for _, e := range multierr.Errors(err) {
		fmt.Fprintf(w, "%s: %s\n", progname, e)
	}
}

// Turn the result of a command into an exit status.
func exitStatus(w io.Writer, f *flag.FlagSet, err error) subcommands.ExitStatus {
	switch {
	case err == nil:
		return subcommands.ExitSuccess
	case err == errUsage:
		f.Usage()
		return subcommands.ExitUsageError
	}
	report(w, err)
	return subcommands.ExitFailure
}

// Flags shared by the commands that load a configuration.  Set flags
// override the configuration file.
type configFlags struct {
	config   string
	dir      string
	pkg      string
	bindPkg  string
	basename string
	chunk    uint
}

func (c *configFlags) registerConfig(f *flag.FlagSet) {
	f.StringVar(&c.config, "config", "",
		"read configuration from `file` instead of searching for rxgen.conf")
	f.UintVar(&c.chunk, "chunk", 0,
		"largest blob or bulk read, in `bytes` (default from configuration)")
}

func (c *configFlags) registerOutput(f *flag.FlagSet) {
	f.StringVar(&c.pkg, "p", "", "Go `package` of the generated files")
	f.StringVar(&c.bindPkg, "bind-package", "",
		"Go `package` of the binding files, if different")
	f.StringVar(&c.basename, "basename", "",
		"`prefix` of the generated file names")
}

func (c *configFlags) load() (*rxgen.Config, error) {
	conf, err := rxgen.LoadConfig(c.config)
	if err != nil {
		return nil, err
	}
	if c.dir != "" {
		conf.Output.Dir = c.dir
	}
	if c.pkg != "" {
		conf.Output.Package = c.pkg
	}
	if c.bindPkg != "" {
		conf.Output.BindPackage = c.bindPkg
	}
	if c.basename != "" {
		conf.Output.Basename = c.basename
	}
	if c.chunk != 0 {
		conf.Decode.ChunkSize = uint32(c.chunk)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&compileCmd{}, "")
	subcommands.Register(&planCmd{}, "")
	subcommands.Register(&checkCmd{}, "")
	subcommands.Register(&configCmd{}, "")

	flag.Parse()
	status := subcommands.Execute(context.Background())
	glog.Flush()
	os.Exit(int(status))
}
