package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/splax/deskpulse/internal/domain"
	"github.com/splax/deskpulse/internal/merge"
	"github.com/splax/deskpulse/internal/service/session"
)

func newCmdSync(a *app) *cobra.Command {
	var show string
	cmd := &cobra.Command{
		Use:   "sync WORKSPACE_ID",
		Short: "Reconcile every table of a workspace against the API",
		Long: "Loads the cached snapshot (when --cache is set), fetches every table and merges\n" +
			"by last-writer-wins. Prints what changed per table.",
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			sess, release, err := a.openSession()
			if err != nil {
				return err
			}
			defer release()

			report := sess.SelectWorkspace(c.Context(), args[0])
			if err := printLoadReport(a.out, sess, report); err != nil {
				return err
			}
			if show == "" {
				return nil
			}
			table, err := domain.ParseTable(show)
			if err != nil {
				return err
			}
			return printTable(a.out, sess, table)
		},
	}
	cmd.Flags().StringVar(&show, "show", "", "Print the merged entities of one table as JSON lines")
	return cmd
}

func tableLen(sess *session.Session, table domain.Table) int {
	switch table {
	case domain.TableClients:
		return sess.Clients().Snapshot().Len()
	case domain.TableTasks:
		return sess.Tasks().Snapshot().Len()
	case domain.TableFinanceEntries:
		return sess.FinanceEntries().Snapshot().Len()
	case domain.TableNotes:
		return sess.Notes().Snapshot().Len()
	}
	return 0
}

func printLoadReport(w io.Writer, sess *session.Session, report session.LoadReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tENTITIES\tINSERTED\tREPLACED\tKEPT LOCAL\tSTATUS")
	for _, table := range domain.AllTables() {
		status := "ok"
		if err, failed := report.Failed[table]; failed {
			status = "fetch failed: " + err.Error()
		}
		r := report.Merged[table]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\n", table, tableLen(sess, table), r.Inserted, r.Replaced, r.KeptLocal, status)
	}
	return tw.Flush()
}

func printTable(w io.Writer, sess *session.Session, table domain.Table) error {
	switch table {
	case domain.TableClients:
		return printEntities(w, sess.Clients().Snapshot())
	case domain.TableTasks:
		return printEntities(w, sess.Tasks().Snapshot())
	case domain.TableFinanceEntries:
		return printEntities(w, sess.FinanceEntries().Snapshot())
	case domain.TableNotes:
		return printEntities(w, sess.Notes().Snapshot())
	}
	return domain.ErrUnknownTable
}

func printEntities[P domain.Payload](w io.Writer, c merge.Collection[P]) error {
	enc := json.NewEncoder(w)
	for _, e := range c.Entities() {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}
