package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	camdashversion "github.com/camdash/camdash/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "camdash",
		Short:         "Kiosk CCTV dashboard engine and control client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.Version = camdashversion.String()
	rootCmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	rootCmd.PersistentFlags().String("addr", "http://127.0.0.1:8089", "engine address for control commands")
	rootCmd.PersistentFlags().String("token", "", "session token (from camdash login)")

	rootCmd.AddCommand(
		newRunCmd(),
		newLoginCmd(),
		newStatusCmd(),
		newNavCmd(),
		newCamerasCmd(),
		newProfilesCmd(),
		newUsersCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
