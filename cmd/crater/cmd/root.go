// Package cmd implements Crater's CLI verbs over cobra, including the
// exit-code convention named in §6: 0 success, 1 user error (invalid
// args/config), 2 operational failure (storage/network after retry), 3
// sandbox misconfiguration.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codeready-toolchain/crater/pkg/crerr"
	"github.com/codeready-toolchain/crater/pkg/version"
)

const (
	exitSuccess    = 0
	exitUserError  = 1
	exitOperation  = 2
	exitSandbox    = 3
)

var (
	configPath string
	workDir    string
)

var rootCmd = &cobra.Command{
	Use:           "crater",
	Short:         "Crater orchestrates crater-style toolchain regression runs",
	Version:       version.Full(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", envOr("CRATER_CONFIG", "./crater.yaml"), "path to the crater.yaml configuration document")
	rootCmd.PersistentFlags().StringVar(&workDir, "work-dir", envOr("CRATER_WORK_DIR", "./crater-work"), "root directory for persisted state and job scratch space")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(abortCmd)
	rootCmd.AddCommand(retryReportCmd)
	rootCmd.AddCommand(checkConfigCmd)
	rootCmd.AddCommand(registerAgentCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Execute runs the CLI and returns the process exit code named in §6,
// classifying the returned error via the crerr taxonomy.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return exitSuccess
	}
	fmt.Fprintln(os.Stderr, "crater:", err)
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case crerr.IsConfigError(err):
		return exitUserError
	case isSandboxFailure(err):
		return exitSandbox
	default:
		return exitOperation
	}
}

func isSandboxFailure(err error) bool {
	var sf *crerr.SandboxFailure
	return errors.As(err, &sf)
}
