package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newFetchIssuesCmd(a *app) *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "fetch-issues",
		Short: "Fetch every issue and pull request and archive the raw listing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateState(state); err != nil {
				return err
			}
			client, err := a.githubClient()
			if err != nil {
				return err
			}
			path, status, err := a.syncer(client, nil).FetchIssues(cmd.Context(), state)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Archived %d records to %s\n", status.Records, path)
			if status.Truncated() {
				fmt.Fprintf(a.out, "Warning: listing stopped early: %v\n", status.Err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&state, "state", "all", "Which issues to fetch: open or all")
	return cmd
}

func newFetchLabelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch-labels",
		Short: "Fetch every label defined on the repository and archive the listing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.githubClient()
			if err != nil {
				return err
			}
			path, count, status, err := a.syncer(client, nil).FetchLabels(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Archived %d labels to %s\n", count, path)
			if status.Truncated() {
				fmt.Fprintf(a.out, "Warning: listing stopped early: %v\n", status.Err)
			}
			return nil
		},
	}
}

func newFetchDiscussionsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "fetch-discussions",
		Short: "Fetch every discussion and archive them under a timestamped name",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.graphQLClient()
			if err != nil {
				return err
			}
			path, count, status, err := a.syncer(nil, client).FetchDiscussions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Archived %d discussions to %s\n", count, path)
			if status.Truncated() {
				fmt.Fprintf(a.out, "Warning: listing stopped early: %v\n", status.Err)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "Discussions per page (max 100)")
	return cmd
}

func validateState(state string) error {
	switch state {
	case "open", "all":
		return nil
	default:
		return fmt.Errorf("invalid --state %q: expected open or all", state)
	}
}
