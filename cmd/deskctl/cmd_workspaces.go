package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/splax/deskpulse/internal/domain"
)

func newCmdWorkspaces(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workspaces",
		Aliases: []string{"ws"},
		Short:   "List and manage workspaces",
	}
	cmd.AddCommand(newCmdWorkspacesList(a))
	cmd.AddCommand(newCmdWorkspacesCreate(a))
	cmd.AddCommand(newCmdWorkspacesMembers(a))
	cmd.AddCommand(newCmdWorkspacesInvite(a))
	cmd.AddCommand(newCmdWorkspacesJoin(a))
	return cmd
}

func newCmdWorkspacesList(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your workspaces",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			cli, err := a.apiClient()
			if err != nil {
				return err
			}
			list, err := cli.ListWorkspaces(c.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tOWNER\tCREATED")
			for _, ws := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ws.ID, ws.Name, ws.OwnerID, ws.CreatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

func newCmdWorkspacesCreate(a *app) *cobra.Command {
	var color string
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a workspace you own",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cli, err := a.apiClient()
			if err != nil {
				return err
			}
			ws, err := cli.CreateWorkspace(c.Context(), args[0], color)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "created workspace %s (%s)\n", ws.Name, ws.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&color, "color", "", "Accent color")
	return cmd
}

func newCmdWorkspacesMembers(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "members WORKSPACE_ID",
		Short: "List workspace members",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cli, err := a.apiClient()
			if err != nil {
				return err
			}
			members, err := cli.Members(c.Context(), args[0])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "USER\tROLE\tJOINED")
			for _, m := range members {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", m.UserID, m.Role, m.JoinedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

func newCmdWorkspacesInvite(a *app) *cobra.Command {
	var (
		role string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "invite WORKSPACE_ID",
		Short: "Issue a one-time invite token",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cli, err := a.apiClient()
			if err != nil {
				return err
			}
			invite, token, err := cli.CreateInvite(c.Context(), args[0], domain.Role(role), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "invite %s (%s) expires %s\n", invite.ID, invite.Role, invite.ExpiresAt.Format(time.RFC3339))
			fmt.Fprintf(a.out, "token: %s\n", token)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", string(domain.RoleEditor), "Role granted on accept (editor or viewer)")
	cmd.Flags().DurationVar(&ttl, "ttl", 7*24*time.Hour, "Invite lifetime")
	return cmd
}

func newCmdWorkspacesJoin(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "join WORKSPACE_ID TOKEN",
		Short: "Accept an invite",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			cli, err := a.apiClient()
			if err != nil {
				return err
			}
			member, err := cli.AcceptInvite(c.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "joined %s as %s\n", member.WorkspaceID, member.Role)
			return nil
		},
	}
}
