// The steer command runs demo computations under the interactive
// runtime. Defaults can be placed in a .env file (STEER_PORT,
// STEER_RATE).
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "steer",
	Short: "steer runs iterative computations with live viewer control.",
	Long: `steer runs iterative computations with live viewer control. ` +
		`The computation advances at its own pace while a web monitor ` +
		`exposes its controls and fields and lets a viewer mutate ` +
		`parameters between steps.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		// Missing .env files are fine; flags and built-in defaults apply.
		_ = godotenv.Load()
	},
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
