package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wesm/argh/internal/sync"
)

func newSnapshotCmd(a *app) *cobra.Command {
	var opts sync.SnapshotOptions
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Fetch, archive, load and summarize in one run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateState(opts.State); err != nil {
				return err
			}
			issues, err := a.githubClient()
			if err != nil {
				return err
			}

			var s *sync.Syncer
			if opts.Discussions {
				discussions, err := a.graphQLClient()
				if err != nil {
					return err
				}
				s = a.syncer(issues, discussions)
			} else {
				s = a.syncer(issues, nil)
			}

			result, err := s.Snapshot(cmd.Context(), opts)
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, "Store: %s (%d issues, %d pull requests, %d labels)\n",
				result.StorePath, result.Stats.Issues, result.Stats.PullRequests, result.Stats.Labels)
			fmt.Fprintf(a.out, "Summaries: %d files\n", len(result.Summaries))
			if result.Truncated {
				fmt.Fprintln(a.out, "Warning: at least one listing stopped early; the snapshot is partial")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.State, "state", "all", "Which issues to fetch: open or all")
	cmd.Flags().BoolVar(&opts.Labels, "labels", false, "Also fetch every label defined on the repository")
	cmd.Flags().BoolVar(&opts.Discussions, "discussions", false, "Also fetch and load discussions")
	cmd.Flags().IntVar(&opts.DiscussionLimit, "limit", 100, "Discussions per page (max 100)")
	return cmd
}
