package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"flowplane/pkg/api"
)

var throwCmd = &cobra.Command{
	Use:   "throw",
	Short: "Throw events at waiting process instances",
	Long:  `Throw message, signal, and error events. Messages are matched against waiting instances by name and correlation key; signals broadcast to every subscriber; errors target a single activity scope.`,
}

var throwMessageCmd = &cobra.Command{
	Use:   "message",
	Short: "Throw a message event",
	Run: func(cmd *cobra.Command, args []string) {
		client := NewFlowClient(viper.GetString("url"), viper.GetString("token"))

		name, _ := cmd.Flags().GetString("name")
		if name == "" {
			cmd.Println("Error: --name is required")
			os.Exit(1)
		}

		correlations, _ := cmd.Flags().GetStringSlice("correlation")
		if len(correlations) > 5 {
			cmd.Println("Error: at most 5 correlation values are allowed")
			os.Exit(1)
		}

		payload, _ := cmd.Flags().GetString("payload")
		if payload != "" && !json.Valid([]byte(payload)) {
			cmd.Println("Error: --payload must be valid JSON")
			os.Exit(1)
		}

		targetProcess, _ := cmd.Flags().GetString("target-process")
		targetNode, _ := cmd.Flags().GetString("target-node")

		req := api.ThrowMessageRequest{
			MessageName:    name,
			TargetProcess:  targetProcess,
			TargetFlowNode: targetNode,
		}
		for _, c := range correlations {
			c := c
			req.Correlations = append(req.Correlations, &c)
		}
		if payload != "" {
			req.Payload = json.RawMessage(payload)
		}

		resp, err := client.ThrowMessage(req)
		if err != nil {
			cmd.Printf("Error throwing message: %s\n", err)
			os.Exit(1)
		}

		cmd.Printf("Message thrown. Instance ID: %d\n", resp.MessageInstanceID)
	},
}

var throwSignalCmd = &cobra.Command{
	Use:   "signal",
	Short: "Broadcast a signal event",
	Run: func(cmd *cobra.Command, args []string) {
		client := NewFlowClient(viper.GetString("url"), viper.GetString("token"))

		name, _ := cmd.Flags().GetString("name")
		if name == "" {
			cmd.Println("Error: --name is required")
			os.Exit(1)
		}

		payload, _ := cmd.Flags().GetString("payload")
		if payload != "" && !json.Valid([]byte(payload)) {
			cmd.Println("Error: --payload must be valid JSON")
			os.Exit(1)
		}

		req := api.ThrowSignalRequest{SignalName: name}
		if payload != "" {
			req.Payload = json.RawMessage(payload)
		}

		resp, err := client.ThrowSignal(req)
		if err != nil {
			cmd.Printf("Error throwing signal: %s\n", err)
			os.Exit(1)
		}

		cmd.Printf("Signal delivered to %d waiting instance(s).\n", resp.Delivered)
	},
}

var throwErrorCmd = &cobra.Command{
	Use:   "error",
	Short: "Throw an error event at an activity scope",
	Run: func(cmd *cobra.Command, args []string) {
		client := NewFlowClient(viper.GetString("url"), viper.GetString("token"))

		code, _ := cmd.Flags().GetString("code")
		if code == "" {
			cmd.Println("Error: --code is required")
			os.Exit(1)
		}
		activity, _ := cmd.Flags().GetInt64("activity")

		resp, err := client.ThrowError(api.ThrowErrorRequest{
			ErrorCode:         code,
			RelatedActivityID: activity,
		})
		if err != nil {
			cmd.Printf("Error throwing error event: %s\n", err)
			os.Exit(1)
		}

		if resp.Caught {
			cmd.Printf("Error caught by waiting event %d.\n", resp.WaitingEventID)
		} else {
			cmd.Println("No catching event at this scope; error propagates to the caller.")
		}
	},
}

func init() {
	rootCmd.AddCommand(throwCmd)
	throwCmd.AddCommand(throwMessageCmd)
	throwCmd.AddCommand(throwSignalCmd)
	throwCmd.AddCommand(throwErrorCmd)

	throwMessageCmd.Flags().StringP("name", "n", "", "Message name")
	throwMessageCmd.Flags().StringSliceP("correlation", "c", nil, "Correlation values (repeat, up to 5)")
	throwMessageCmd.Flags().StringP("payload", "p", "", "JSON payload handed to the resumed instance")
	throwMessageCmd.Flags().String("target-process", "", "Restrict matching to a process name")
	throwMessageCmd.Flags().String("target-node", "", "Restrict matching to a flow node name")

	throwSignalCmd.Flags().StringP("name", "n", "", "Signal name")
	throwSignalCmd.Flags().StringP("payload", "p", "", "JSON payload handed to resumed instances")

	throwErrorCmd.Flags().String("code", "", "Error code")
	throwErrorCmd.Flags().Int64("activity", 0, "Activity instance ID defining the scope")
}
