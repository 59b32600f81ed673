package main

import (
	"github.com/spf13/cobra"

	"github.com/cppla/inkwell/client"
)

type rootOptions struct {
	server     string
	jsonOutput bool
}

func (o *rootOptions) client() *client.Client {
	return client.NewClient(o.server)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "blogctl",
		Short:         "blogctl lists, creates, shows and deletes blog posts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Version = "0.1.0"
	cmd.PersistentFlags().StringVar(&opts.server, "server", "", "API base URL (default $"+client.BaseURLEnvKey+" or "+client.DefaultBaseURL+")")
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output JSON")

	cmd.AddCommand(
		newListCmd(opts),
		newShowCmd(opts),
		newCreateCmd(opts),
		newDeleteCmd(opts),
		newHealthCmd(opts),
		newStatsCmd(opts),
	)

	return cmd
}
