package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"flowplane/pkg/api"
)

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage tenants",
}

var tenantCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new tenant and print its API key",
	Run: func(cmd *cobra.Command, args []string) {
		client := NewFlowClient(viper.GetString("url"), viper.GetString("token"))

		name, _ := cmd.Flags().GetString("name")
		if name == "" {
			cmd.Println("Error: --name is required")
			os.Exit(1)
		}

		resp, err := client.CreateTenant(api.CreateTenantRequest{Name: name})
		if err != nil {
			cmd.Printf("Error creating tenant: %s\n", err)
			os.Exit(1)
		}

		cmd.Printf("Tenant created.\n")
		cmd.Printf("  ID:      %s\n", resp.ID)
		cmd.Printf("  Name:    %s\n", resp.Name)
		cmd.Printf("  API key: %s\n", resp.ApiKey)
		cmd.Println("Store the API key now; it is not retrievable later.")
	},
}

func init() {
	rootCmd.AddCommand(tenantCmd)
	tenantCmd.AddCommand(tenantCreateCmd)

	tenantCreateCmd.Flags().StringP("name", "n", "", "Tenant name")
}
