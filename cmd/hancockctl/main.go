// Package main provides hancockctl, a command-line client for the hancock API.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hancock/internal/client"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("HANCOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "hancockctl",
		Short:         "Create and inspect hancock signature sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("url", "http://localhost:8000", "Server base URL (HANCOCK_URL)")
	root.PersistentFlags().String("api-key", "", "API key for session creation (HANCOCK_API_KEY)")
	root.PersistentFlags().Bool("no-color", false, "Disable colored output")
	_ = v.BindPFlag("url", root.PersistentFlags().Lookup("url"))
	_ = v.BindPFlag("api-key", root.PersistentFlags().Lookup("api-key"))
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if off, _ := cmd.Flags().GetBool("no-color"); off {
			color.NoColor = true
		}
	}

	newClient := func() *client.Client {
		return client.New(v.GetString("url"), v.GetString("api-key"))
	}
	root.AddCommand(
		createCmd(newClient),
		statusCmd(newClient),
		artifactCmd(newClient),
		hashKeyCmd(),
	)
	return root
}
