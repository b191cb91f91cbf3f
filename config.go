package rxgen

import (
	"fmt"
	"go/token"
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/golang/glog"
	"github.com/xdrpp/rxgen/ini"
	"github.com/xdrpp/rxgen/phase"
)

const configFileName = "rxgen.conf"

// Built-in configuration, used as the base of every configuration and
// in full when no configuration file is found.
var DefaultConfigContents = []byte(
	`# Default settings for the rxgen compiler.

[output]
# Directory and base name of the generated files.
dir = .
basename = rxgen
# Go package of the wire files, and of the binding files when
# bind-package is empty.  A different bind-package puts the binding
# files in a subdirectory of that name.
package = rxgen
bind-package =
# Record a digest of the inputs in every generated file.
header-digest = true

[decode]
# Largest blob or bulk read a decoder asks for at once.
chunk-size = 1024

[compile]
# Define RXRPC_SECURITY_PLAIN, _AUTH and _ENCRYPT.
predefined-constants = true
`)

type OutputConfig struct {
	Dir          string `ini:"dir"`
	Basename     string `ini:"basename"`
	Package      string `ini:"package"`
	BindPackage  string `ini:"bind-package"`
	HeaderDigest bool   `ini:"header-digest"`
}

type DecodeConfig struct {
	ChunkSize uint32 `ini:"chunk-size"`
}

type CompileConfig struct {
	PredefinedConstants bool `ini:"predefined-constants"`
}

type Config struct {
	Output  OutputConfig
	Decode  DecodeConfig
	Compile CompileConfig

	// File the configuration came from; "" for the built-in text.
	Source string
}

// One sink per section, in the order of DefaultConfigContents.
func (c *Config) sections() []*ini.StructSink {
	var ret []*ini.StructSink
	for _, sec := range []struct {
		name string
		ptr  interface{}
	}{
		{"output", &c.Output},
		{"decode", &c.Decode},
		{"compile", &c.Compile},
	} {
		s := &ini.StructSink{Sec: &ini.Section{Name: sec.name}}
		s.AddStruct(sec.ptr)
		ret = append(ret, s)
	}
	return ret
}

func (c *Config) sinks() ini.Sinks {
	var ret ini.Sinks
	for _, s := range c.sections() {
		ret = append(ret, s)
	}
	return ret
}

// Render c in the configuration file syntax.
func (c *Config) String() string {
	out := strings.Builder{}
	for i, s := range c.sections() {
		if i > 0 {
			out.WriteByte('\n')
		}
		out.WriteString(s.String())
	}
	return out.String()
}

// Look up one setting by its qualified name, such as "output.package".
func (c *Config) Get(name string) (string, error) {
	n := strings.IndexByte(name, '.')
	if n < 0 {
		return "", fmt.Errorf("%s: expected section.key", name)
	}
	for _, s := range c.sections() {
		if s.Sec.Name != name[:n] {
			continue
		}
		if ptr, ok := s.Fields[name[n+1:]]; ok {
			return fmt.Sprint(reflect.ValueOf(ptr).Elem().Interface()), nil
		}
	}
	return "", fmt.Errorf("unknown setting %s", name)
}

type configSink struct {
	ini.Sinks
}

func (s configSink) StartSection(sec *ini.Section) error {
	switch sec.Name {
	case "output", "decode", "compile":
		return nil
	}
	return ini.BadKey(fmt.Sprintf("unknown section %s", sec))
}

func (s configSink) Item(it ini.Item) error {
	if it.Section == nil {
		return ini.BadKey(fmt.Sprintf("%s outside of any section", it.Key))
	}
	return s.Sinks.Item(it)
}

// Check values the INI syntax cannot.
func (c *Config) Validate() error {
	switch {
	case !token.IsIdentifier(c.Output.Package):
		return fmt.Errorf("output.package: %q is not a Go identifier",
			c.Output.Package)
	case c.Output.BindPackage != "" &&
		!token.IsIdentifier(c.Output.BindPackage):
		return fmt.Errorf("output.bind-package: %q is not a Go identifier",
			c.Output.BindPackage)
	case c.Output.Basename == "":
		return fmt.Errorf("output.basename is empty")
	case c.Decode.ChunkSize < 8 || c.Decode.ChunkSize%4 != 0:
		return fmt.Errorf("decode.chunk-size: %d is not a multiple of 4 "+
			"of at least 8", c.Decode.ChunkSize)
	}
	return nil
}

// The built-in configuration.
func DefaultConfig() *Config {
	c := &Config{}
	if err := ini.Parse(configSink{c.sinks()}, "(default)",
		DefaultConfigContents); err != nil {
		panic(err)
	}
	return c
}

// Parse a configuration file over the built-in defaults.
func ParseConfig(filename string, contents []byte) (*Config, error) {
	c := DefaultConfig()
	if err := ini.Parse(configSink{c.sinks()}, filename,
		contents); err != nil {
		return nil, err
	}
	c.Source = filename
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return c, nil
}

// Places searched for a configuration file when none is named.
func configSearchPath() []string {
	var ret []string
	if d, ok := os.LookupEnv("RXGENDIR"); ok {
		ret = append(ret, filepath.Join(d, configFileName))
	}
	ret = append(ret, filepath.FromSlash("/etc/"+configFileName))
	if exe, err := os.Executable(); err == nil {
		ret = append(ret, filepath.Join(filepath.Dir(filepath.Dir(exe)),
			"share", configFileName))
	}
	return ret
}

// Load the configuration from path or, if path is "", from the first
// of $RXGENDIR/rxgen.conf, /etc/rxgen.conf, and ../share/rxgen.conf
// relative to the executable that exists.  With no file, the built-in
// configuration is used.
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		contents, err := ioutil.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return ParseConfig(path, contents)
	}
	for _, conf := range configSearchPath() {
		if contents, err := ioutil.ReadFile(conf); err == nil {
			glog.V(1).Infof("using configuration %s", conf)
			return ParseConfig(conf, contents)
		}
	}
	return DefaultConfig(), nil
}

// The emitter chunk for c; phase.DefaultChunk if unset.
func (c *Config) chunk() uint32 {
	if c.Decode.ChunkSize == 0 {
		return phase.DefaultChunk
	}
	return c.Decode.ChunkSize
}
