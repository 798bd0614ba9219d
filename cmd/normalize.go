package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kilianp07/ocppbridge/core/command"
)

func newNormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize [file]",
		Short: "Print the canonical form of a remote command document (stdin when no file)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if len(args) == 1 && args[0] != "-" {
				data, err = os.ReadFile(args[0])
			} else {
				data, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return err
			}
			cmdDoc, ok := command.NormalizeJSON(data)
			if !ok {
				return fmt.Errorf("no command in document")
			}
			cmdDoc.Raw = nil
			return printJSON(cmd.OutOrStdout(), cmdDoc)
		},
	}
}
