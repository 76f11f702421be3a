package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"rankguard/src/envelope"
	"rankguard/src/storage/resultstore"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect persisted job results",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the ids of completed jobs",
	Args:  cobra.NoArgs,
	RunE:  runJobsList,
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print the response a completed job is answered with",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsShow,
}

var jobsVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that every persisted result is a readable JSON object",
	Args:  cobra.NoArgs,
	RunE:  runJobsVerify,
}

func init() {
	jobsCmd.AddCommand(jobsListCmd, jobsShowCmd, jobsVerifyCmd)
	rootCmd.AddCommand(jobsCmd)
}

func runJobsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := newResultStore(ctx)
	if err != nil {
		return err
	}

	ids, err := store.List(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Fprintln(cmd.OutOrStdout(), id)
	}
	return nil
}

func runJobsShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := newResultStore(ctx)
	if err != nil {
		return err
	}

	rc, err := store.Open(ctx, args[0])
	if err != nil {
		return err
	}
	defer rc.Close()

	out := cmd.OutOrStdout()
	if _, err := envelope.WriteCompleted(out, rc); err != nil {
		return err
	}
	fmt.Fprintln(out)
	return nil
}

func runJobsVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := newResultStore(ctx)
	if err != nil {
		return err
	}

	ids, err := store.List(ctx)
	if err != nil {
		return err
	}

	bar := progressbar.Default(int64(len(ids)), "verifying")
	var broken []string
	for _, id := range ids {
		if err := verifyResult(ctx, store, id); err != nil {
			broken = append(broken, fmt.Sprintf("%s: %v", id, err))
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	for _, line := range broken {
		fmt.Fprintln(os.Stderr, line)
	}
	if len(broken) > 0 {
		return fmt.Errorf("%d of %d results are unreadable", len(broken), len(ids))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d results verified\n", len(ids))
	return nil
}

func verifyResult(ctx context.Context, store resultstore.Store, id string) error {
	rc, err := store.Open(ctx, id)
	if err != nil {
		return err
	}
	defer rc.Close()

	_, err = envelope.WriteCompleted(io.Discard, rc)
	return err
}
