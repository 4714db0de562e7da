package cli

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/stride/internal/sqlite"
	"github.com/mesh-intelligence/stride/pkg/types"
)

func newNoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "note",
		Short: "Manage notes and ideas",
	}
	cmd.AddCommand(newNoteAddCmd())
	cmd.AddCommand(newNoteListCmd())
	cmd.AddCommand(newNoteOpenCmd())
	return cmd
}

func newNoteAddCmd() *cobra.Command {
	var (
		kind   string
		task   string
		attach string
		audio  bool
	)
	cmd := &cobra.Command{
		Use:   "add <content>",
		Short: "Capture a note, optionally with an attachment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if kind != types.NoteKindIdea && kind != types.NoteKindNote {
				return userErr(fmt.Errorf("invalid note kind %q (idea or note)", kind))
			}
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			n := &types.Note{Content: args[0], Kind: kind, IsAudio: audio, LinkedTaskUUID: task}
			if attach != "" {
				f, err := os.Open(attach)
				if err != nil {
					return userErr(fmt.Errorf("open attachment: %w", err))
				}
				defer f.Close()
				name := filepath.Base(attach)
				n.Attachment, err = a.Attach(cmd.Context(), name, mime.TypeByExtension(filepath.Ext(name)), f)
				if err != nil {
					return sysErr(err)
				}
			}

			err = a.Store.Update(cmd.Context(), func(tx *sqlite.Tx) error {
				return tx.CreateNote(n, types.OriginLocal)
			})
			if err != nil {
				if n.Attachment != nil {
					_ = a.ReleaseAttachment(cmd.Context(), n.Attachment.Path)
				}
				return classify(err)
			}
			a.Changed()
			if flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), n)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created note %d %s\n", n.LocalID, n.UUID)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", types.NoteKindNote, "idea or note")
	cmd.Flags().StringVar(&task, "task", "", "linked task uuid")
	cmd.Flags().StringVar(&attach, "attach", "", "file to attach")
	cmd.Flags().BoolVar(&audio, "audio", false, "mark as a voice memo")
	return cmd
}

func newNoteListCmd() *cobra.Command {
	var task string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var notes []*types.Note
			err = a.Store.View(cmd.Context(), func(tx *sqlite.Tx) error {
				notes, err = tx.ListNotes(task)
				return err
			})
			if err != nil {
				return classify(err)
			}
			if flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), notes)
			}
			w := table(cmd.OutOrStdout())
			fmt.Fprintln(w, "ID\tKIND\tATTACHMENT\tCONTENT")
			for _, n := range notes {
				att := "-"
				if n.Attachment != nil {
					att = n.Attachment.Name
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", n.LocalID, n.Kind, att, n.Content)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&task, "task", "", "only notes linked to this task uuid")
	return cmd
}

func newNoteOpenCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "open <id>",
		Short: "Write a note's attachment to a file or standard output",
		Long: "Write a note's attachment. Attachments captured on another replica are\n" +
			"downloaded from the remote and cached on first use.",
		Args: cobra.ExactArgs(1),
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

			var n *types.Note
			err = a.Store.View(cmd.Context(), func(tx *sqlite.Tx) error {
				n, err = tx.GetNote(id)
				return err
			})
			if err != nil {
				return classify(err)
			}
			if n.Tombstoned() {
				return classify(types.ErrTombstoned)
			}
			if n.Attachment == nil {
				return userErr(fmt.Errorf("note %d has no attachment", id))
			}

			rc, err := a.OpenAttachment(cmd.Context(), n.Attachment)
			if err != nil {
				return classify(err)
			}
			defer rc.Close()

			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return sysErr(fmt.Errorf("create %s: %w", out, err))
				}
				defer f.Close()
				w = f
			}
			if _, err := io.Copy(w, rc); err != nil {
				return sysErr(fmt.Errorf("write attachment: %w", err))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of standard output")
	return cmd
}
