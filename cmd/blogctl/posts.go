package main

import (
	"errors"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cppla/inkwell/client"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List posts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := client.NewPostStore(opts.client())
			defer store.Close()
			if err := store.Load(cmd.Context()); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return writeJSON(out, store.Posts())
			}
			return writePostList(out, store.Posts())
		},
	}
}

func newShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a post with its attachments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			post, err := opts.client().GetPost(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), post)
			}
			return writePostDetail(cmd.OutOrStdout(), post)
		},
	}
}

type createCmdOptions struct {
	title   string
	author  string
	content string
	attach  []string
}

func newCreateCmd(opts *rootOptions) *cobra.Command {
	co := &createCmdOptions{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a post, optionally with attachments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			draft, closeFiles, err := buildDraft(co)
			if err != nil {
				return err
			}
			defer closeFiles()

			store := client.NewPostStore(c)
			defer store.Close()
			if limits, err := c.Limits(cmd.Context()); err == nil {
				store.SetMaxAttachments(limits.MaxAttachments)
			}
			post, err := store.Submit(cmd.Context(), draft)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), post)
			}
			return writePlain(cmd.OutOrStdout(), "%s\n", post.ID)
		},
	}

	cmd.Flags().StringVar(&co.title, "title", "", "post title")
	cmd.Flags().StringVar(&co.author, "author", "", "post author")
	cmd.Flags().StringVar(&co.content, "content", "", "post content, or @path to read it from a file")
	cmd.Flags().StringArrayVar(&co.attach, "attach", nil, "file to attach (repeatable)")
	return cmd
}

func buildDraft(co *createCmdOptions) (*client.Draft, func(), error) {
	content := co.content
	if strings.HasPrefix(content, "@") {
		b, err := os.ReadFile(strings.TrimPrefix(content, "@"))
		if err != nil {
			return nil, func() {}, err
		}
		content = string(b)
	}

	draft := &client.Draft{Title: co.title, Author: co.author, Content: content}
	var opened []*os.File
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	for _, path := range co.attach {
		f, err := os.Open(path)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		opened = append(opened, f)
		draft.Files = append(draft.Files, client.File{
			Name:        filepath.Base(path),
			ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
			Body:        f,
		})
	}
	return draft, closeAll, nil
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id> [<id>...]",
		Short: "Delete posts and their attachments",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := client.NewPostStore(opts.client())
			defer store.Close()
			var errs []error
			for _, id := range args {
				if err := store.Delete(cmd.Context(), id); err != nil {
					errs = append(errs, errors.New(id+": "+err.Error()))
					continue
				}
				if !opts.jsonOutput {
					if err := writePlain(cmd.OutOrStdout(), "deleted %s\n", id); err != nil {
						return err
					}
				}
			}
			if opts.jsonOutput && len(errs) == 0 {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"deleted": args})
			}
			return errors.Join(errs...)
		},
	}
}

func newHealthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the API server is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			if err := c.Health(cmd.Context()); err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]bool{"ok": true})
			}
			return writePlain(cmd.OutOrStdout(), "ok %s\n", c.BaseURL())
		},
	}
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show post and attachment counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := opts.client().Stats(cmd.Context())
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			return writePlain(cmd.OutOrStdout(), "posts: %d\nattachments: %d\nattachment_bytes: %d\n",
				stats.Posts, stats.Attachments, stats.AttachmentBytes)
		},
	}
}
