// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package output routes command output to stdout, stderr, or logs according to the global flags.
package output

import (
	"errors"
	"fmt"
	"golang.org/x/net/context"
	"io"
	"os"
	"strings"

	"github.com/google/logger"
	"github.com/spf13/cobra"
)

// ErrNoContext is returned when FromContext cannot find an output.Options in the context.
var ErrNoContext = errors.New("no output context found")

const (
	warningPrefix = "WARNING: "
	errorPrefix   = "ERROR: "
	debugPrefix   = "DEBUG: "
)

// Options controls the meaning of output modalities.
type Options struct {
	Quiet   bool
	Verbose bool
	UseLogs bool
	// Overwrite lets commands replace files that already exist.
	Overwrite bool
	// KeepGoing makes commands that check several sources report every failure before exiting.
	KeepGoing bool
	Out       io.Writer
	Err       io.Writer
	indent    int
}

// AddFlags adds flags specific to the Options object to the given command.
func (opts *Options) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().BoolVar(&opts.Quiet, "quiet", false,
		"Print nothing if command is successful")
	cmd.PersistentFlags().BoolVar(&opts.Verbose, "verbose", false,
		"Print additional info to stdout")
	cmd.PersistentFlags().BoolVar(&opts.UseLogs, "use_logs", false,
		"Print messages to log instead of stdout/stderr")
	cmd.PersistentFlags().BoolVar(&opts.Overwrite, "overwrite", false,
		"Allow commands to replace existing output files.")
	cmd.PersistentFlags().BoolVar(&opts.KeepGoing, "keep_going", false,
		"Check every register source and report all mismatches instead of stopping at the first.")
}

// Validate returns an error if the Options values are incompatible.
func (opts *Options) Validate(cmd *cobra.Command) error {
	if opts.Quiet && opts.Verbose {
		return fmt.Errorf("cannot specify both --quiet and --verbose")
	}
	cmd.SilenceUsage = true
	return nil
}

type outputKeyType struct{}

var outputKey outputKeyType

// NewContext returns ctx extended with opts added.
func NewContext(ctx context.Context, opts *Options) context.Context {
	return context.WithValue(ctx, outputKey, opts)
}

// FromContext returns the Options value in ctx if it exists.
func FromContext(ctx context.Context) (*Options, error) {
	opts, ok := ctx.Value(outputKey).(*Options)
	if !ok {
		return nil, ErrNoContext
	}
	return opts, nil
}

// WithIndent returns a context whose Infof lines are indented by two more spaces.
func WithIndent(ctx context.Context) context.Context {
	opts, err := FromContext(ctx)
	if err != nil {
		return ctx
	}
	indented := *opts
	indented.indent += 2
	return NewContext(ctx, &indented)
}

// sink is a destination and whether it is a terminal that understands ANSI colors.
type sink struct {
	w     io.Writer
	istty bool
}

func isTty(f *os.File) bool {
	s, err := f.Stat()
	return err == nil && (s.Mode()&os.ModeCharDevice) == os.ModeCharDevice
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, ErrNoContext }

var (
	stdoutSink  = &sink{w: os.Stdout, istty: isTty(os.Stdout)}
	failSink    = &sink{w: failWriter{}}
	discardSink = &sink{w: io.Discard}
)

// output returns the sink for standard tool output, or nil to use logs.
func output(ctx context.Context) *sink {
	opts, err := FromContext(ctx)
	switch {
	case err != nil:
		return failSink
	case opts.UseLogs:
		return nil
	case opts.Quiet:
		return discardSink
	case opts.Out != nil:
		return &sink{w: opts.Out}
	}
	return stdoutSink
}

// debug returns the sink for verbose output, or nil to use logs.
func debug(ctx context.Context) *sink {
	opts, err := FromContext(ctx)
	switch {
	case err != nil:
		return failSink
	case opts.UseLogs:
		return nil
	case opts.Verbose && opts.Out != nil:
		return &sink{w: opts.Out}
	case opts.Verbose:
		return stdoutSink
	case opts.Err != nil:
		return &sink{w: opts.Err}
	}
	return discardSink
}

type ansiColor int

const (
	red    ansiColor = 31
	yellow ansiColor = 33
)

// https://en.wikipedia.org/wiki/ANSI_escape_code
func (s *sink) prefix(color ansiColor, txt string) string {
	if s.istty {
		return fmt.Sprintf("\033[1;%dm%s\033[0m", color, txt)
	}
	return txt
}

func indentation(ctx context.Context) string {
	opts, err := FromContext(ctx)
	if err != nil {
		return ""
	}
	return strings.Repeat(" ", opts.indent)
}

// Infof writes a formatted string with a newline to the Output modality.
func Infof(ctx context.Context, format string, args ...any) (int, error) {
	if s := output(ctx); s != nil {
		return fmt.Fprintf(s.w, indentation(ctx)+format+"\n", args...)
	}
	logger.Infof(format, args...)
	return 1, nil
}

// Warningf writes a formatted string with a newline to the Output modality, prefixed by a warning
// message.
func Warningf(ctx context.Context, format string, args ...any) (int, error) {
	if s := output(ctx); s != nil {
		return fmt.Fprintf(s.w, s.prefix(yellow, warningPrefix)+format+"\n", args...)
	}
	logger.Warningf(format, args...)
	return 1, nil
}

// Errorf writes a formatted string with a newline to the Output modality, prefixed by an error
// message.
func Errorf(ctx context.Context, format string, args ...any) (int, error) {
	if s := output(ctx); s != nil {
		return fmt.Fprintf(s.w, s.prefix(red, errorPrefix)+format+"\n", args...)
	}
	logger.Errorf(format, args...)
	return 1, nil
}

// The logger has no query for whether a verbosity level is active, so rendering is detected
// through a Stringer argument.
type onRender struct{ wasRendered bool }

func (o *onRender) String() string {
	o.wasRendered = true
	return ""
}

// Debugf writes a formatted string with a newline to the Debug modality.
func Debugf(ctx context.Context, format string, args ...any) (int, error) {
	if s := debug(ctx); s != nil {
		return fmt.Fprintf(s.w, debugPrefix+format+"\n", args...)
	}
	var w onRender
	logger.V(1).Infof(format+"%v", append(args, &w)...)
	if w.wasRendered {
		return 1, nil
	}
	return 0, nil
}

// AllowOverwrite returns true if --overwrite is true.
func AllowOverwrite(ctx context.Context) bool {
	o, _ := FromContext(ctx)
	return o != nil && o.Overwrite
}

// AllowRecoverableError returns true if --keep_going is true.
func AllowRecoverableError(ctx context.Context) bool {
	o, _ := FromContext(ctx)
	return o != nil && o.KeepGoing
}
