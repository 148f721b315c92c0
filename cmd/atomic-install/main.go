// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command atomic-install drives a single journaled install transaction:
// scan a source tree, persist its journal, then copy, back up, replace
// and clean up into a destination tree, or revert a previously
// interrupted transaction back to its pre-install state.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/mgorny/atomic-install-v2/install"
	"github.com/mgorny/atomic-install-v2/journal"
	stagelog "github.com/mgorny/atomic-install-v2/log"
	"github.com/mgorny/atomic-install-v2/scan"
)

func main() {
	c := &Config{
		Args:   os.Args,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
	os.Exit(c.Run())
}

// Config specifies a full configuration for an atomic-install execution,
// keeping Run independently testable from os.Args/os.Stdout.
type Config struct {
	Args           []string
	Stdout, Stderr io.Writer
}

// Run executes a configuration and returns an exit code: 0 on success,
// nonzero on any propagated error.
func (c *Config) Run() (exitCode int) {
	logger := stagelog.New(c.Stderr)

	fs := flag.NewFlagSet("atomic-install", flag.ContinueOnError)
	fs.SetOutput(c.Stderr)
	source := fs.String("source", "", "source tree to install from")
	dest := fs.String("dest", "", "destination tree to install into")
	journalPath := fs.String("journal", "", "journal file path (default: <dest>/.atomic-install.journal)")
	revert := fs.Bool("revert", false, "revert a previously interrupted transaction instead of installing")
	verbose := fs.Bool("v", false, "narrate stage transitions and absorbed errno conditions")
	fs.Usage = func() {
		fmt.Fprintln(c.Stderr, "Usage of atomic-install:")
		fmt.Fprintln(c.Stderr)
		w := tabwriter.NewWriter(c.Stderr, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "\t-source\tsource tree to install from")
		fmt.Fprintln(w, "\t-dest\tdestination tree to install into")
		fmt.Fprintln(w, "\t-journal\tjournal file path (default: <dest>/.atomic-install.journal)")
		fmt.Fprintln(w, "\t-revert\trevert a previously interrupted transaction")
		fmt.Fprintln(w, "\t-v\tenable verbose stage narration")
		w.Flush()
	}

	if err := fs.Parse(c.Args[1:]); err != nil {
		return 1
	}
	if *dest == "" || (!*revert && *source == "") {
		fs.Usage()
		return 1
	}
	if *journalPath == "" {
		*journalPath = filepath.Join(*dest, ".atomic-install.journal")
	}

	if *revert {
		return c.runRevert(logger, *journalPath, *verbose)
	}
	return c.runInstall(logger, *source, *dest, *journalPath, *verbose)
}

func (c *Config) runInstall(logger *stagelog.Logger, source, dest, journalPath string, verbose bool) int {
	j := journal.New(source, dest)

	logger.LogStagefln("scanning %s", source)
	if err := scan.Scan(j); err != nil {
		fmt.Fprintln(c.Stderr, err)
		return 1
	}

	engine := install.NewEngine(j, journalPath)
	engine.Logger = logger
	engine.Verbose = verbose

	logger.LogStagefln("copying files into %s", dest)
	if err := engine.CopyFiles(); err != nil {
		fmt.Fprintln(c.Stderr, err)
		return 1
	}

	logger.LogStagefln("backing up prior files")
	if err := engine.BackupFiles(); err != nil {
		fmt.Fprintln(c.Stderr, err)
		if rerr := engine.Revert(); rerr != nil {
			fmt.Fprintln(c.Stderr, rerr)
		}
		_ = engine.Cleanup()
		return 1
	}

	logger.LogStagefln("committing")
	if err := engine.Replace(); err != nil {
		fmt.Fprintln(c.Stderr, err)
		fmt.Fprintln(c.Stderr, "past commit point; re-run with -revert or resume to roll forward")
		return 1
	}

	logger.LogStagefln("cleaning up")
	if err := engine.Cleanup(); err != nil {
		fmt.Fprintln(c.Stderr, err)
		return 1
	}

	return 0
}

func (c *Config) runRevert(logger *stagelog.Logger, journalPath string, verbose bool) int {
	j, err := journal.Read(journalPath)
	if err != nil {
		fmt.Fprintln(c.Stderr, err)
		return 1
	}

	engine := install.NewEngine(j, journalPath)
	engine.Logger = logger
	engine.Verbose = verbose

	logger.LogStagefln("reverting %s", j.DestRoot)
	if err := engine.Revert(); err != nil {
		fmt.Fprintln(c.Stderr, err)
		return 1
	}

	logger.LogStagefln("cleaning up")
	if err := engine.Cleanup(); err != nil {
		fmt.Fprintln(c.Stderr, err)
		return 1
	}

	return 0
}
