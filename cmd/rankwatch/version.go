package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ternarybob/rankwatch/internal/common"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Rankwatch version %s\n", common.GetFullVersion())
		},
	}
}
