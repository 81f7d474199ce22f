package cmd

import (
	"github.com/spf13/cobra"

	"github.com/codeready-toolchain/crater/pkg/agentrt"
	"github.com/codeready-toolchain/crater/pkg/config"
	"github.com/codeready-toolchain/crater/pkg/crerr"
	"github.com/codeready-toolchain/crater/pkg/sandbox"
	"github.com/codeready-toolchain/crater/pkg/workspace"
)

var (
	agentServerURL string
	agentName      string
	agentToken     string
	agentThreads   int
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run a Crater agent: poll the server for experiments and execute their jobs",
	RunE:  runAgent,
}

func init() {
	agentCmd.Flags().StringVar(&agentServerURL, "server", envOr("CRATER_SERVER_URL", "http://localhost:8080"), "base URL of the Crater server")
	agentCmd.Flags().StringVar(&agentName, "name", envOr("CRATER_AGENT_NAME", ""), "this agent's registered name")
	agentCmd.Flags().StringVar(&agentToken, "token", envOr("CRATER_AGENT_TOKEN", ""), "this agent's bearer token")
	agentCmd.Flags().IntVar(&agentThreads, "threads", 4, "number of jobs to run concurrently")
}

func runAgent(cmd *cobra.Command, args []string) error {
	if agentName == "" || agentToken == "" {
		return crerr.NewConfigError("agent", "--name and --token (or CRATER_AGENT_NAME/CRATER_AGENT_TOKEN) are required")
	}

	client := agentrt.NewHTTPClient(agentServerURL, agentName, agentToken)
	builder := workspace.NewBuilder(workDir)
	executor := sandbox.New(builder, config.DefaultSandboxCaps())

	opts := agentrt.DefaultOptions()
	opts.Threads = agentThreads

	runtime := agentrt.New(client, executor, opts)
	return runtime.Run(cmd.Context())
}
