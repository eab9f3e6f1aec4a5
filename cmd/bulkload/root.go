package main

import (
	"fmt"
	"io"

	"github.com/hugolhafner/go-bulkload"
	"github.com/spf13/cobra"
)

func newRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	rc := &cobra.Command{
		Use:   "bulkload",
		Short: "Load large key/value datasets into a store in retried, concurrent batches.",
		Long: `bulkload reads key/value records, groups them into bounded batches and
writes the batches concurrently into bbolt, etcd or a compacted Kafka topic.
Failed writes are retried with backoff; records that still fail are reported
and can be written to a spill file for a later replay.

Every option can be set with a flag, a BULKLOAD_* environment variable (dots
and dashes become underscores) or a key in the file given with --config.`,
		SilenceUsage: true,
	}

	rc.AddCommand(newLoadCommand(stdin, stdout, stderr))
	rc.AddCommand(newReplayCommand(stdin, stdout, stderr))
	rc.AddCommand(newVerifyCommand(stdin, stdout, stderr))
	rc.AddCommand(newVersionCommand(stdout))

	rc.SetIn(stdin)
	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

func newVersionCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the bulkload version.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(stdout, bulkload.Version)
		},
	}
}
