// Command jsonrecover runs the JSON recovery pipeline over model output read from stdin or a file.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"insights-proxy/api/internal/insights/types"
	"insights-proxy/api/internal/logging"
	"insights-proxy/api/internal/normalize"
	"insights-proxy/api/internal/util"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "jsonrecover",
		Short:         "Recover schema-shaped JSON from raw model output",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("file", "f", "", "read input from file instead of stdin")
	root.AddCommand(newExtractCmd(), newRepairCmd(), newNormalizeCmd())
	return root
}

func readInput(cmd *cobra.Command) (string, error) {
	path, _ := cmd.Flags().GetString("file")
	var (
		b   []byte
		err error
	)
	if path == "" || path == "-" {
		b, err = io.ReadAll(cmd.InOrStdin())
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return "", eris.Wrap(err, "read input")
	}
	return string(b), nil
}

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract",
		Short: "Print the JSON value found in the input",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := readInput(cmd)
			if err != nil {
				return err
			}
			cand, ok := util.ExtractJSON(in)
			if !ok {
				return eris.New("no json value found")
			}
			if !cand.Valid {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: best-effort slice, does not parse")
			}
			fmt.Fprintln(cmd.OutOrStdout(), cand.Text)
			return nil
		},
	}
}

func newRepairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "Close unterminated strings, arrays and objects",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := readInput(cmd)
			if err != nil {
				return err
			}
			text := util.StripCodeFences(in)
			if i := util.FirstOpener(text); i > 0 {
				text = text[i:]
			}
			fmt.Fprintln(cmd.OutOrStdout(), util.RepairTruncated(text))
			return nil
		},
	}
}

func newNormalizeCmd() *cobra.Command {
	var (
		task    string
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Recover and normalize the input into a task schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, err := types.ParseTask(task)
			if err != nil {
				return eris.Wrapf(err, "valid tasks: %s", taskList())
			}
			in, err := readInput(cmd)
			if err != nil {
				return err
			}
			level := "warn"
			if verbose {
				level = "debug"
			}
			log, err := logging.New(level, "console")
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			out, err := normalize.New(log).Recover(kind, in)
			if err != nil {
				return err
			}
			if verbose {
				fmt.Fprintln(cmd.ErrOrStderr(), "tier:", out.Tier)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out.JSON))
			return nil
		},
	}
	cmd.Flags().StringVarP(&task, "task", "t", "", "task kind ("+taskList()+")")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log the tiers tried")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func taskList() string {
	var names []string
	for _, t := range types.Tasks() {
		names = append(names, string(t))
	}
	return strings.Join(names, ", ")
}
