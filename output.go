package rxgen

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"go.uber.org/multierr"
	"golang.org/x/crypto/blake2b"
)

const digestPrefix = "// rxgen-digest: "

type File struct {
	Name     string // relative to the output directory
	Contents []byte
}

// The generated artifacts of one compilation unit.
type Output struct {
	Digest string
	Files  []File
}

// Hex BLAKE2b-256 of the concatenated inputs.
func Digest(srcs []Source) string {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}
	for _, src := range srcs {
		h.Write(src.Contents)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Write every artifact under dir.  Each file is replaced atomically;
// a failure on one file does not stop the others, and all failures
// are returned.
func (out *Output) WriteFiles(dir string) error {
	var err error
	for _, f := range out.Files {
		path := filepath.Join(dir, f.Name)
		if e := os.MkdirAll(filepath.Dir(path), 0777); e != nil {
			err = multierr.Append(err, e)
			continue
		}
		glog.V(1).Infof("writing %s", path)
		if e := SafeWriteFile(path, f.Contents, 0666); e != nil {
			glog.Errorf("%s", e)
			err = multierr.Append(err, e)
		}
	}
	return err
}

type ErrIsDirectory string

func (e ErrIsDirectory) Error() string {
	return string(e) + ": is a directory"
}

// Write data to path by way of path+".lock", which is created
// exclusively, flushed, and renamed over path.  Fails if the lock file
// already exists.
func SafeWriteFile(path string, data []byte, perm os.FileMode) (err error) {
	if fi, e := os.Stat(path); e != nil && !os.IsNotExist(e) {
		return e
	} else if e == nil && fi.IsDir() {
		return ErrIsDirectory(path)
	}
	lockpath := path + ".lock"
	f, err := os.OpenFile(lockpath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	defer func() {
		if f != nil {
			err = multierr.Append(err, f.Close())
		}
		if lockpath != "" {
			os.Remove(lockpath)
		}
	}()
	if _, err = f.Write(data); err != nil {
		return err
	} else if err = f.Sync(); err != nil {
		return err
	}
	if err, f = f.Close(), nil; err != nil {
		return err
	}
	if err = os.Rename(lockpath, path); err == nil {
		lockpath = ""
	}
	return err
}

// Generated files whose recorded digest does not match the inputs.
type StaleError struct {
	Files []string
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("stale generated files: %s",
		strings.Join(e.Files, ", "))
}

// The digest recorded in the header of a generated file, or "".
func ReadDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for i := 0; i < 3 && sc.Scan(); i++ {
		if line := sc.Bytes(); bytes.HasPrefix(line, []byte(digestPrefix)) {
			return string(line[len(digestPrefix):]), nil
		}
	}
	return "", sc.Err()
}

// Check that the artifacts for conf under dir were generated from
// srcs.  Returns a *StaleError listing mismatched or missing files,
// or the I/O errors met along the way.
func Check(dir string, srcs []Source, conf *Config) error {
	want := Digest(srcs)
	var stale []string
	var err error
	for _, name := range ArtifactNames(conf) {
		path := filepath.Join(dir, name)
		got, e := ReadDigest(path)
		if os.IsNotExist(e) {
			stale = append(stale, path)
			continue
		} else if e != nil {
			err = multierr.Append(err, e)
			continue
		}
		if got != want {
			glog.V(1).Infof("%s: digest %q, want %q", path, got, want)
			stale = append(stale, path)
		}
	}
	if err != nil {
		return err
	} else if len(stale) > 0 {
		return &StaleError{Files: stale}
	}
	return nil
}
