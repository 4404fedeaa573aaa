package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var waitsCmd = &cobra.Command{
	Use:   "waits",
	Short: "Inspect active waiting events",
	Long:  `Inspect what a tenant's process instances are currently waiting for: messages with their correlation keys, signal subscriptions and error catch registrations.`,
}

var waitsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active waiting events",
	Run: func(cmd *cobra.Command, args []string) {
		client := NewFlowClient(viper.GetString("url"), viper.GetString("token"))

		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		waits, err := client.ListWaits(limit, offset)
		if err != nil {
			cmd.Printf("Error fetching waits: %s\n", err)
			os.Exit(1)
		}

		if len(waits) == 0 {
			if offset > 0 {
				cmd.Println("No more active waits found.")
			} else {
				cmd.Println("No active waits found.")
			}
			return
		}

		// Print table
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tKIND\tEVENT\tCORRELATION\tPROCESS\tNODE")
		for _, wait := range waits {
			event := wait.MessageName
			switch wait.Kind {
			case "SIGNAL":
				event = wait.SignalName
			case "ERROR":
				if wait.ErrorCode != nil {
					event = *wait.ErrorCode
				} else {
					event = "(catch-all)"
				}
			}

			var slots []string
			for _, slot := range wait.Correlations {
				if slot == nil {
					slots = append(slots, "-")
				} else {
					slots = append(slots, *slot)
				}
			}

			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
				wait.WaitingEventID,
				wait.Kind,
				event,
				strings.Join(slots, ","),
				wait.ProcessName,
				wait.FlowNodeName,
			)
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(waitsCmd)
	waitsCmd.AddCommand(waitsListCmd)

	waitsListCmd.Flags().IntP("limit", "l", 20, "Number of waits to list")
	waitsListCmd.Flags().IntP("offset", "o", 0, "Offset for pagination")
}
