/*
Copyright 2025 The Kubernator Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package options defines the CLI surface from spec.md §6: a struct of
// flags plus a positional command, bound to a pflag.FlagSet the way
// ControllerRunOptions.AddPFlags does in the teacher repository.
package options

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/kubernator-io/kubernator/internal/dump"
	"github.com/kubernator-io/kubernator/internal/logging"
)

// Command is the positional argument spec.md §6 names: `dump` or `apply`.
type Command string

const (
	CommandDump  Command = "dump"
	CommandApply Command = "apply"
)

// Options holds every flag spec.md §6 lists plus the resolved positional
// command.
type Options struct {
	LogFormat string
	LogFile   string
	Verbosity string

	DumpFile string
	Output   string
	RootPath string
	Yes      bool

	Command Command
}

// NewDefaultOptions returns the flag defaults spec.md §6 implies.
func NewDefaultOptions() Options {
	return Options{
		LogFormat: string(logging.FormatHuman),
		Verbosity: string(logging.LevelInfo),
		Output:    string(dump.FormatJSON),
		RootPath:  ".",
	}
}

// AddPFlags binds every flag in Options to flags.
func (o *Options) AddPFlags(flags *pflag.FlagSet) {
	flags.StringVar(&o.LogFormat, "log-format", o.LogFormat, "Log encoding: human or json.")
	flags.StringVar(&o.LogFile, "log-file", o.LogFile, "Write logs to this file instead of stderr.")
	flags.StringVarP(&o.Verbosity, "verbosity", "v", o.Verbosity, "Log verbosity: CRITICAL, ERROR, WARNING, INFO, DEBUG, or TRACE.")
	flags.StringVarP(&o.DumpFile, "file", "f", o.DumpFile, "Dump target file (dump command only).")
	flags.StringVarP(&o.Output, "output", "o", o.Output, "Dump output format: json, json-pretty, or yaml.")
	flags.StringVarP(&o.RootPath, "path", "p", o.RootPath, "Root directory to walk.")
	flags.BoolVar(&o.Yes, "yes", o.Yes, "Accepted for compatibility; apply asks for no confirmation, so this flag has no effect.")
}

// ParsePositional resolves the single positional `command` argument.
func (o *Options) ParsePositional(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one command (dump or apply), got %d", len(args))
	}

	switch Command(args[0]) {
	case CommandDump, CommandApply:
		o.Command = Command(args[0])
	default:
		return fmt.Errorf("unknown command %q: want dump or apply", args[0])
	}

	return nil
}

// Validate checks the flag combination spec.md §6 requires.
func (o *Options) Validate() error {
	switch logging.Format(o.LogFormat) {
	case logging.FormatHuman, logging.FormatJSON:
	default:
		return fmt.Errorf("invalid --log-format %q", o.LogFormat)
	}

	switch logging.Level(o.Verbosity) {
	case logging.LevelCritical, logging.LevelError, logging.LevelWarning, logging.LevelInfo, logging.LevelDebug, logging.LevelTrace:
	default:
		return fmt.Errorf("invalid -v %q", o.Verbosity)
	}

	switch dump.Format(o.Output) {
	case dump.FormatJSON, dump.FormatJSONPretty, dump.FormatYAML:
	default:
		return fmt.Errorf("invalid -o %q", o.Output)
	}

	if o.Command == CommandDump && o.DumpFile == "" {
		return fmt.Errorf("dump command requires -f <file>")
	}

	return nil
}
