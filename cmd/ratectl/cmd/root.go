package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "ratectl",
	Short: "ratectl submits bulk rate-shopping jobs and inspects their results",
	Long: `ratectl is the command-line client for the rate-shopping API.

Common workflows:

  Mint a development bearer token:
    ratectl token --sub user-1

  Submit shipments and wait for the job to finish:
    ratectl submit --file shipments.json --accounts acct-ups,acct-fedex --wait

  Check progress:
    ratectl status <job-id>

  Print priced and orphaned shipments:
    ratectl results <job-id>

Configuration:
  RATESHOP_URL         API endpoint (default: http://localhost:8080)
  RATESHOP_TOKEN       Bearer token
  RATESHOP_JWT_SECRET  Secret used by "ratectl token" (default: dev-secret)`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".ratectl")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("RATESHOP")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.ratectl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:8080", "rate-shopping API URL")
	_ = viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "bearer token for authentication")
	_ = viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}

func newClientFromConfig() (*RateClient, error) {
	token := viper.GetString("token")
	if token == "" {
		return nil, fmt.Errorf("API token not found; set --token or RATESHOP_TOKEN")
	}
	return NewRateClient(viper.GetString("url"), token), nil
}
