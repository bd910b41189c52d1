package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wesm/argh/internal/maintenance"
)

func newCloseStalePRsCmd(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "close-stale-prs",
		Short: "Comment on and close pull requests stuck waiting on their author",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.githubClient()
			if err != nil {
				return err
			}
			report, err := maintenance.NewStaleCloser(client, a.logger).Run(cmd.Context(), maintenance.StaleOptions{
				Owner:   a.cfg.RepoOwner,
				Name:    a.cfg.RepoName,
				Label:   a.cfg.StalePRLabel,
				MaxAge:  a.cfg.StalePRAge,
				Comment: a.cfg.StalePRComment,
				DryRun:  dryRun,
			})
			if report != nil {
				fmt.Fprint(a.out, report.String())
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only report what would be closed")
	return cmd
}

func newPruneBranchesCmd(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "prune-branches",
		Short: "Delete branches without a commit in the configured age",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.githubClient()
			if err != nil {
				return err
			}
			report, err := maintenance.NewBranchPruner(client, a.logger).Run(cmd.Context(), maintenance.BranchOptions{
				Owner:  a.cfg.RepoOwner,
				Name:   a.cfg.RepoName,
				MaxAge: a.cfg.BranchMaxAge,
				Keep:   a.cfg.KeepBranches,
				DryRun: dryRun,
			})
			if report != nil {
				fmt.Fprint(a.out, report.String())
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only report what would be deleted")
	return cmd
}
