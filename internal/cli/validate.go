package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openbasemap/tiledl"
)

func init() {
	validateCmd := &cobra.Command{
		Use:   "validate-url",
		Short: "Check a tile URL template for required placeholders",
		RunE:  runValidateURL,
	}

	validateCmd.Flags().String("url-template", "", "tile URL template to validate")
	validateCmd.Flags().Bool("has-subdomains", false, "whether a {s} subdomain pool will be supplied")

	mustBind("validate.url-template", validateCmd.Flags().Lookup("url-template"))
	mustBind("validate.has-subdomains", validateCmd.Flags().Lookup("has-subdomains"))

	rootCmd.AddCommand(validateCmd)
}

func runValidateURL(cmd *cobra.Command, args []string) error {
	result := tiledl.ValidateTileURL(viper.GetString("validate.url-template"), viper.GetBool("validate.has-subdomains"))

	fmt.Printf("valid: %v\n", result.Valid)
	if len(result.Placeholders) > 0 {
		fmt.Printf("placeholders found: %v\n", result.Placeholders)
	}
	if len(result.Missing) > 0 {
		fmt.Printf("missing: %v\n", result.Missing)
	}
	for _, w := range result.Warnings {
		fmt.Printf("warning: %s\n", w)
	}

	if !result.Valid {
		return fmt.Errorf("cli: url template is invalid")
	}
	return nil
}
