package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wesm/argh/internal/sync"
)

func newLoadCmd(a *app) *cobra.Command {
	var in sync.LoadInputs
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Build a fresh store from an issues archive",
		Long: `Build <output-dir>/db/<owner>_<repo>.db from a raw issues listing. The store is
rebuilt from scratch; the previous one is only replaced once the new one is complete.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := a.syncer(nil, nil)
			if in.Issues == "" {
				in.Issues = s.Archive().IssuesPath(a.cfg.RepoOwner, a.cfg.RepoName)
			}

			stats, err := s.BuildStore(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Loaded %d issues, %d pull requests, %d labels, %d label links, %d discussions into %s\n",
				stats.Issues, stats.PullRequests, stats.Labels, stats.ResourceLabels, stats.Discussions, s.StorePath())
			return nil
		},
	}
	cmd.Flags().StringVarP(&in.Issues, "input", "i", "", "Issues archive (default: the repository's archive under historical/issues)")
	cmd.Flags().StringVar(&in.Labels, "labels", "", "Label archive from fetch-labels, so labels no record carries are stored too")
	cmd.Flags().StringVar(&in.Discussions, "discussions", "", "Discussions archive to load alongside")
	return cmd
}
