package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/stride/internal/sqlite"
	"github.com/mesh-intelligence/stride/pkg/types"
)

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}
	cmd.AddCommand(newProjectAddCmd())
	cmd.AddCommand(newProjectListCmd())
	cmd.AddCommand(newProjectDeleteCmd())
	return cmd
}

func newProjectAddCmd() *cobra.Command {
	var goal, color string
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			p := &types.Project{Title: args[0], Goal: goal, Color: color}
			err = a.Store.Update(cmd.Context(), func(tx *sqlite.Tx) error {
				return tx.CreateProject(p, types.OriginLocal)
			})
			if err != nil {
				return classify(err)
			}
			a.Changed()
			if flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), p)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created project %d %s\n", p.LocalID, p.UUID)
			return nil
		},
	}
	cmd.Flags().StringVar(&goal, "goal", "", "desired outcome")
	cmd.Flags().StringVar(&color, "color", "", "display color, e.g. #4f46e5")
	return cmd
}

func newProjectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var projects []*types.Project
			err = a.Store.View(cmd.Context(), func(tx *sqlite.Tx) error {
				projects, err = tx.ListProjects()
				return err
			})
			if err != nil {
				return classify(err)
			}
			if flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), projects)
			}
			w := table(cmd.OutOrStdout())
			fmt.Fprintln(w, "ID\tUUID\tTITLE\tGOAL")
			for _, p := range projects {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", p.LocalID, p.UUID, p.Title, p.Goal)
			}
			return w.Flush()
		},
	}
}

func newProjectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a project and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Delete(cmd.Context(), types.TableProjects, id); err != nil {
				return classify(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted project %d\n", id)
			return nil
		},
	}
}
