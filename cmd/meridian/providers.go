package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List registered providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		active, _ := manager.GetActiveProviderID()

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PROVIDER\tAVAILABLE\tIN ORDER\tCAPABILITIES\tACTIVE")
		for _, s := range manager.ListProviders() {
			var caps []string
			if s.Capabilities.Vision {
				caps = append(caps, "vision")
			}
			if s.Capabilities.NativeTools {
				caps = append(caps, "tools")
			}
			mark := ""
			if s.ID == active {
				mark = "*"
			}
			fmt.Fprintf(w, "%s\t%t\t%t\t%s\t%s\n", s.ID, s.Available, s.InFallbackOrder, strings.Join(caps, ","), mark)
		}
		return w.Flush()
	},
}
