package cmd

import (
	"fmt"
	"os"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/codeready-toolchain/crater/pkg/cliutil"
	"github.com/codeready-toolchain/crater/pkg/model"
)

var opServerURL string

func addOpServerFlag(c *cobra.Command) {
	c.Flags().StringVar(&opServerURL, "server", envOr("CRATER_SERVER_URL", "http://localhost:8080"), "base URL of the Crater server")
}

func opClient() *cliutil.OpClient {
	return cliutil.NewOpClient(opServerURL, operatorIdentity())
}

// operatorIdentity resolves the identity the server's ACL checks against,
// defaulting to the local OS user the way an interactive operator command
// naturally would.
func operatorIdentity() string {
	if v := os.Getenv("CRATER_IDENTITY"); v != "" {
		return v
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return "unknown"
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a queued experiment (§6 \"create\")",
	Args:  cobra.ArbitraryArgs,
	RunE:  runCreate,
}

var editCmd = &cobra.Command{
	Use:   "edit NAME",
	Short: "Edit a queued experiment's toolchains, mode, crates, priority, or assignment",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runEdit,
}

var abortCmd = &cobra.Command{
	Use:   "abort NAME",
	Short: "Abort an experiment from any pre-completion state",
	Args:  cobra.ExactArgs(1),
	RunE:  runAbort,
}

var retryReportCmd = &cobra.Command{
	Use:   "retry-report NAME",
	Short: "Re-run report generation for an experiment stuck in report-failed (§6)",
	Args:  cobra.ExactArgs(1),
	RunE:  runRetryReport,
}

func init() {
	addOpServerFlag(createCmd)
	addOpServerFlag(editCmd)
	addOpServerFlag(abortCmd)
	addOpServerFlag(retryReportCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	parsed, err := cliutil.ParseArgs(args)
	if err != nil {
		return err
	}

	name := parsed["name"]
	if name == "" {
		return fmt.Errorf("create requires name=...")
	}

	tcA, err := cliutil.ParseToolchain(parsed["start"])
	if err != nil {
		return fmt.Errorf("start=: %w", err)
	}
	tcB, err := cliutil.ParseToolchain(parsed["end"])
	if err != nil {
		return fmt.Errorf("end=: %w", err)
	}

	mode := model.Mode(parsed["mode"])
	if !mode.Valid() {
		return fmt.Errorf("invalid mode=%q", parsed["mode"])
	}

	crates, err := cliutil.ParseCrateSelection(parsed["crates"])
	if err != nil {
		return err
	}

	capLints, err := cliutil.ParseLintCap(parsed["cap-lints"])
	if err != nil {
		return err
	}

	ignoreBlacklist, err := cliutil.ParseBool(parsed["ignore-blacklist"])
	if err != nil {
		return fmt.Errorf("ignore-blacklist=: %w", err)
	}

	priority := 0
	if v := parsed["p"]; v != "" {
		if _, err := fmt.Sscanf(v, "%d", &priority); err != nil {
			return fmt.Errorf("p=: %w", err)
		}
	}
	if v := parsed["priority"]; v != "" {
		if _, err := fmt.Sscanf(v, "%d", &priority); err != nil {
			return fmt.Errorf("priority=: %w", err)
		}
	}

	req := cliutil.CreateExperimentRequest{
		Name:            name,
		ToolchainA:      tcA,
		ToolchainB:      tcB,
		Mode:            mode,
		Crates:          crates,
		CapLints:        capLints,
		IgnoreBlacklist: ignoreBlacklist,
		Requirement:     cliutil.ParseRequirement(parsed["requirement"]),
		Priority:        priority,
		Assign:          parsed["assign"],
	}

	if err := opClient().CreateExperiment(cmd.Context(), req); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", name)
	return nil
}

func runEdit(cmd *cobra.Command, args []string) error {
	name := args[0]
	parsed, err := cliutil.ParseArgs(args[1:])
	if err != nil {
		return err
	}

	var req cliutil.EditExperimentRequest
	if v, ok := parsed["start"]; ok {
		tc, err := cliutil.ParseToolchain(v)
		if err != nil {
			return fmt.Errorf("start=: %w", err)
		}
		req.ToolchainA = &tc
	}
	if v, ok := parsed["end"]; ok {
		tc, err := cliutil.ParseToolchain(v)
		if err != nil {
			return fmt.Errorf("end=: %w", err)
		}
		req.ToolchainB = &tc
	}
	if v, ok := parsed["mode"]; ok {
		mode := model.Mode(v)
		if !mode.Valid() {
			return fmt.Errorf("invalid mode=%q", v)
		}
		req.Mode = &mode
	}
	if v, ok := parsed["crates"]; ok {
		crates, err := cliutil.ParseCrateSelection(v)
		if err != nil {
			return err
		}
		req.Crates = &crates
	}
	if v, ok := parsed["cap-lints"]; ok {
		capLints, err := cliutil.ParseLintCap(v)
		if err != nil {
			return err
		}
		req.CapLints = &capLints
	}
	if v, ok := parsed["priority"]; ok {
		var p int
		if _, err := fmt.Sscanf(v, "%d", &p); err != nil {
			return fmt.Errorf("priority=: %w", err)
		}
		req.Priority = &p
	}
	if v, ok := parsed["p"]; ok {
		var p int
		if _, err := fmt.Sscanf(v, "%d", &p); err != nil {
			return fmt.Errorf("p=: %w", err)
		}
		req.Priority = &p
	}
	if v, ok := parsed["assign"]; ok {
		req.Assign = &v
	}

	if err := opClient().EditExperiment(cmd.Context(), name, req); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "edited %s\n", name)
	return nil
}

func runAbort(cmd *cobra.Command, args []string) error {
	name := args[0]
	if err := opClient().AbortExperiment(cmd.Context(), name); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "aborted %s\n", name)
	return nil
}

func runRetryReport(cmd *cobra.Command, args []string) error {
	name := args[0]
	results, err := opClient().RetryReport(cmd.Context(), name)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "regenerated report for %s: %d crate results\n", name, len(results))
	return nil
}
