// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command exfs2 is the command-line surface over the exfs2 library: it
// parses arguments, opens (and if needed bootstraps) a filesystem in a
// segment directory, dispatches to exactly one of its modes (the five
// core modes or the read-only FUSE mount), and formats their results for standard output and standard error.
// None of the print formatting or argument parsing lives in the
// library — this binary is the only place that does it.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/nazmavali/exfs2/lib/config"
	"github.com/nazmavali/exfs2/lib/exfs2"
	exfs2fuse "github.com/nazmavali/exfs2/lib/exfs2/fuse"
)

// version is stamped by the build process; it defaults to a
// development marker so a locally built binary is still identifiable.
var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			fmt.Fprintf(os.Stderr, "exfs2: %v\n", err)
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "exfs2: %v\n", err)
		os.Exit(1)
	}
}

type modeFlags struct {
	list        bool
	addPath     string
	localFile   string
	removePath  string
	extractPath string
	debugPath   string
	mountPoint  string
}

func run(args []string) error {
	var (
		flags       modeFlags
		dirFlag     string
		configFlag  string
		logLevel    string
		noHints     bool
		allowOther  bool
		showVersion bool
	)

	fs := pflag.NewFlagSet("exfs2", pflag.ContinueOnError)
	fs.BoolVarP(&flags.list, "list", "l", false, "print the directory tree rooted at /")
	fs.StringVarP(&flags.addPath, "add", "a", "", "filesystem path to create (paired with -f)")
	fs.StringVarP(&flags.localFile, "file", "f", "", "local file whose contents populate -a's target")
	fs.StringVarP(&flags.removePath, "remove", "r", "", "filesystem path to remove")
	fs.StringVarP(&flags.extractPath, "extract", "e", "", "filesystem path to write to stdout")
	fs.StringVarP(&flags.debugPath, "debug", "D", "", "filesystem path to print a debug summary for")
	fs.StringVarP(&flags.mountPoint, "mount", "m", "", "mount the filesystem read-only at this host path via FUSE")
	fs.StringVar(&dirFlag, "dir", "", "directory holding segment files (overrides config)")
	fs.StringVar(&configFlag, "config", "", "path to a YAML config file")
	fs.StringVar(&logLevel, "log-level", "", "override the configured log level")
	fs.BoolVar(&noHints, "no-hints", false, "disable the advisory allocation hint cache")
	fs.BoolVar(&allowOther, "allow-other", false, "allow other users to access a FUSE mount (-m)")
	fs.BoolVar(&showVersion, "version", false, "print version information and exit")

	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return fail("%v", err)
	}

	if showVersion {
		fmt.Println("exfs2", version)
		return nil
	}
	if remaining := fs.Args(); len(remaining) > 0 {
		return fail("unexpected argument: %s", remaining[0])
	}

	mode, err := selectMode(flags)
	if err != nil {
		return fail("%v", err)
	}

	cfg, err := config.Load(configFlag)
	if err != nil {
		return fail("loading configuration: %v", err)
	}
	if dirFlag != "" {
		cfg.Directory = dirFlag
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fail("invalid configuration: %v", err)
	}

	logger := newLogger(cfg.LogLevel)

	filesystem, err := exfs2.Open(cfg.Directory, exfs2.Options{
		Logger:          logger,
		AllocationHints: cfg.AllocationHints && !noHints,
	})
	if err != nil {
		return fail("%v", err)
	}
	defer filesystem.Close()

	switch mode {
	case modeList:
		return runList(filesystem)
	case modeAdd:
		return runAdd(filesystem, flags.addPath, flags.localFile)
	case modeRemove:
		return runRemove(filesystem, flags.removePath)
	case modeExtract:
		return runExtract(filesystem, flags.extractPath)
	case modeDebug:
		return runDebug(filesystem, flags.debugPath)
	case modeMount:
		return runMount(filesystem, flags.mountPoint, allowOther, logger)
	}
	return nil
}

type mode int

const (
	modeList mode = iota
	modeAdd
	modeRemove
	modeExtract
	modeDebug
	modeMount
)

// selectMode enforces the CLI's mutually-exclusive mode contract:
// exactly one of -l/-a/-r/-e/-D/-m, and -a always paired with -f.
func selectMode(flags modeFlags) (mode, error) {
	count := 0
	var selected mode
	set := func(m mode) {
		count++
		selected = m
	}
	if flags.list {
		set(modeList)
	}
	if flags.addPath != "" {
		set(modeAdd)
	}
	if flags.removePath != "" {
		set(modeRemove)
	}
	if flags.extractPath != "" {
		set(modeExtract)
	}
	if flags.debugPath != "" {
		set(modeDebug)
	}
	if flags.mountPoint != "" {
		set(modeMount)
	}

	if count != 1 {
		return 0, fmt.Errorf("exactly one of -l, -a, -r, -e, -D, -m is required")
	}
	if selected == modeAdd && flags.localFile == "" {
		return 0, fmt.Errorf("-a requires -f")
	}
	return selected, nil
}

func runList(filesystem *exfs2.FS) error {
	tree, err := filesystem.Tree()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil
	}
	printTree(os.Stdout, tree)
	return nil
}

func runAdd(filesystem *exfs2.FS, path, localFile string) error {
	source, err := os.Open(localFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil
	}
	defer source.Close()

	if err := filesystem.Add(path, source); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return nil
}

func runRemove(filesystem *exfs2.FS, path string) error {
	if err := filesystem.Remove(path); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return nil
}

func runExtract(filesystem *exfs2.FS, path string) error {
	if err := filesystem.Extract(path, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return nil
}

func runDebug(filesystem *exfs2.FS, path string) error {
	report, err := filesystem.Debug(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil
	}
	printDebug(os.Stdout, report)
	return nil
}

func runMount(filesystem *exfs2.FS, mountPoint string, allowOther bool, logger *slog.Logger) error {
	server, err := exfs2fuse.Mount(exfs2fuse.Options{
		Mountpoint: mountPoint,
		FS:         filesystem,
		AllowOther: allowOther,
		Logger:     logger,
	})
	if err != nil {
		return fail("mounting at %s: %v", mountPoint, err)
	}
	server.Wait()
	return nil
}
