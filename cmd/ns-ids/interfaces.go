package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"Go2NetIDS/internal/capture"

	"github.com/spf13/cobra"
)

var interfacesJSON bool

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List capture interfaces",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ifaces, err := capture.ListInterfaces()
		if err != nil {
			return err
		}
		if interfacesJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(ifaces)
		}

		def, _ := capture.DefaultInterface()
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tUP\tIPV4\tADDRESSES\t")
		for _, i := range ifaces {
			name := i.Name
			if name == def {
				name += " *"
			}
			fmt.Fprintf(tw, "%s\t%t\t%t\t%s\t\n", name, i.Up, i.HasIPv4, strings.Join(i.Addresses, ", "))
		}
		return tw.Flush()
	},
}

func init() {
	interfacesCmd.Flags().BoolVar(&interfacesJSON, "json", false, "Print JSON")
}
