package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/splax/deskpulse/internal/domain"
	"github.com/splax/deskpulse/internal/service/session"
)

func newCmdPut(a *app) *cobra.Command {
	var workspaceID, data string
	cmd := &cobra.Command{
		Use:   "put TABLE [ID]",
		Short: "Create or update a record",
		Long: "Applies the payload optimistically to the local session and writes it to the API.\n" +
			"The payload is read from --data, or from stdin when --data is \"-\".",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(c *cobra.Command, args []string) error {
			table, err := domain.ParseTable(args[0])
			if err != nil {
				return err
			}
			id := uuid.NewString()
			if len(args) == 2 {
				id = args[1]
			}
			raw, err := readPayload(data, os.Stdin)
			if err != nil {
				return err
			}

			sess, release, err := a.openSession()
			if err != nil {
				return err
			}
			defer release()
			sess.SelectWorkspace(c.Context(), workspaceID)

			if err := putRecord(c.Context(), sess, table, id, raw); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "stored %s/%s\n", table, id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&workspaceID, "workspace", "w", "", "Workspace id")
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON payload, or - for stdin")
	_ = cmd.MarkFlagRequired("workspace")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func newCmdDelete(a *app) *cobra.Command {
	var workspaceID string
	cmd := &cobra.Command{
		Use:   "delete TABLE ID",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			table, err := domain.ParseTable(args[0])
			if err != nil {
				return err
			}
			sess, release, err := a.openSession()
			if err != nil {
				return err
			}
			defer release()
			sess.SelectWorkspace(c.Context(), workspaceID)

			if err := deleteRecord(c.Context(), sess, table, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "deleted %s/%s\n", table, args[1])
			return nil
		},
	}
	cmd.Flags().StringVarP(&workspaceID, "workspace", "w", "", "Workspace id")
	_ = cmd.MarkFlagRequired("workspace")
	return cmd
}

func readPayload(data string, stdin io.Reader) ([]byte, error) {
	if data == "-" {
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		data = string(raw)
	}
	if !json.Valid([]byte(data)) {
		return nil, errors.New("payload is not valid JSON")
	}
	return []byte(data), nil
}

func putRecord(ctx context.Context, sess *session.Session, table domain.Table, id string, raw []byte) error {
	switch table {
	case domain.TableClients:
		return applyJSON(ctx, sess.Clients(), id, raw)
	case domain.TableTasks:
		return applyJSON(ctx, sess.Tasks(), id, raw)
	case domain.TableFinanceEntries:
		return applyJSON(ctx, sess.FinanceEntries(), id, raw)
	case domain.TableNotes:
		return applyJSON(ctx, sess.Notes(), id, raw)
	}
	return domain.ErrUnknownTable
}

func applyJSON[P domain.Payload](ctx context.Context, t *session.Table[P], id string, raw []byte) error {
	var payload P
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return <-t.Apply(ctx, domain.Entity[P]{ID: id, Payload: payload})
}

func deleteRecord(ctx context.Context, sess *session.Session, table domain.Table, id string) error {
	switch table {
	case domain.TableClients:
		return <-sess.Clients().Delete(ctx, id)
	case domain.TableTasks:
		return <-sess.Tasks().Delete(ctx, id)
	case domain.TableFinanceEntries:
		return <-sess.FinanceEntries().Delete(ctx, id)
	case domain.TableNotes:
		return <-sess.Notes().Delete(ctx, id)
	}
	return domain.ErrUnknownTable
}
