package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	migrate "github.com/getpup/pupsourcing-migrate"
	"github.com/getpup/pupsourcing-migrate/pkg/migrator"
)

func writeStatus(w io.Writer, status migrate.Status) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATE\tID\tNAME\tAPPLIED AT")

	drifted := make(map[migrate.ID]bool, len(status.Drifted))
	for _, id := range status.Drifted {
		drifted[id] = true
	}
	missing := make(map[migrate.ID]bool, len(status.Missing))
	for _, id := range status.Missing {
		missing[id] = true
	}

	for _, e := range status.Applied {
		state := "applied"
		switch {
		case missing[e.ID]:
			state = "missing"
		case drifted[e.ID]:
			state = "drifted"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", state, e.ID, e.Name, e.AppliedAt.UTC().Format(time.RFC3339))
	}
	for _, p := range status.Pending {
		fmt.Fprintf(tw, "pending\t%s\t%s\t-\n", p.ID, p.Name)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "current %s, %d applied, %d pending\n", status.Current(), len(status.Applied), len(status.Pending))
	if err != nil {
		return err
	}
	if !status.Clean() {
		_, err = fmt.Fprintf(w, "warning: %d missing and %d drifted migrations\n", len(status.Missing), len(status.Drifted))
	}
	return err
}

func writePlan(w io.Writer, dry *migrator.DryRun) error {
	if len(dry.Migrations) == 0 {
		_, err := fmt.Fprintf(w, "nothing to do (%s)\n", dry.Direction)
		return err
	}
	if _, err := fmt.Fprintf(w, "%d migrations would run %s:\n", len(dry.Migrations), dry.Direction); err != nil {
		return err
	}
	for _, m := range dry.Migrations {
		if _, err := fmt.Fprintf(w, "  %s %s\n", m.ID, m.Name); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "resulting schema:\n%s", dry.After)
	return err
}
