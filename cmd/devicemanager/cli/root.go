// Package cli implements the devicemanager command-line surface,
// grounded in the teacher pack's cobra+viper root-command idiom
// (spf13/cobra for flag parsing, spf13/viper via internal/config for
// layered config sourced from environment, an optional YAML file, and
// built-in defaults; the --dcd-file flag overrides DCD_FILE after
// loading).
package cli

import (
	"github.com/spf13/cobra"
)

var (
	version   string
	cfgFile   string
	dcdFile   string
	logVerbosity int
)

var rootCmd = &cobra.Command{
	Use:   "devicemanager",
	Short: "Node-local device manager",
	Long:  "devicemanager plans deployment from a node profile, launches and supervises its children, registers with the domain, and drives escalating shutdown on request.",
	RunE:  runRun,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&dcdFile, "dcd-file", "", "node profile fixture path (overrides DCD_FILE)")
	rootCmd.PersistentFlags().IntVarP(&logVerbosity, "v", "v", 0, "log verbosity level")
}

// SetVersion sets the version string reported by --version.
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
