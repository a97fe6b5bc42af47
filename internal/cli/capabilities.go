package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openbasemap/tiledl"
)

func init() {
	capsCmd := &cobra.Command{
		Use:   "capabilities",
		Short: "Resolve the CRS list a service's capabilities document advertises",
		RunE:  runCapabilities,
	}

	capsCmd.Flags().String("capabilities-url", "", "OGC capabilities document URL")
	capsCmd.Flags().String("service-type", "", "service type hint: wms or wmts; inferred from the URL if empty")

	mustBind("caps.capabilities-url", capsCmd.Flags().Lookup("capabilities-url"))
	mustBind("caps.service-type", capsCmd.Flags().Lookup("service-type"))

	rootCmd.AddCommand(capsCmd)
}

func runCapabilities(cmd *cobra.Command, args []string) error {
	result := tiledl.GetSupportedCRS(viper.GetString("caps.capabilities-url"), viper.GetString("caps.service-type"))

	fmt.Printf("source: %s\n", result.Source)
	fmt.Printf("default: %s\n", result.Default)
	fmt.Printf("supported: %v\n", result.SupportedCRS)
	return nil
}
