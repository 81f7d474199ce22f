package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var registerAgentCapabilities string

var registerAgentCmd = &cobra.Command{
	Use:   "register-agent NAME",
	Short: "Register a new agent and mint its bearer token (§3 \"Agent record\")",
	Args:  cobra.ExactArgs(1),
	RunE:  runRegisterAgent,
}

func init() {
	addOpServerFlag(registerAgentCmd)
	registerAgentCmd.Flags().StringVar(&registerAgentCapabilities, "capabilities", "", "comma-separated capability tags, e.g. linux,big-disk")
}

func runRegisterAgent(cmd *cobra.Command, args []string) error {
	name := args[0]
	var capabilities []string
	if registerAgentCapabilities != "" {
		capabilities = strings.Split(registerAgentCapabilities, ",")
	}

	token, err := opClient().RegisterAgent(cmd.Context(), name, capabilities)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "registered %s\ntoken: %s\n", name, token)
	return nil
}
