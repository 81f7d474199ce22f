package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codeready-toolchain/crater/pkg/config"
	"github.com/codeready-toolchain/crater/pkg/corpus"
	"github.com/codeready-toolchain/crater/pkg/crerr"
)

var checkConfigCorpusPath string

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the configuration document against the current corpus (§4.8)",
	RunE:  runCheckConfig,
}

func init() {
	checkConfigCmd.Flags().StringVar(&checkConfigCorpusPath, "corpus", envOr("CRATER_CORPUS_FILE", "./corpus.json"), "path to the corpus-discovery pipeline's package list")
}

func runCheckConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	pkgCorpus, err := corpus.Load(checkConfigCorpusPath)
	if err != nil {
		return crerr.NewConfigError("corpus", err.Error())
	}

	if err := config.NewValidator(cfg, pkgCorpus.KnownPackages()).ValidateAll(); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "configuration ok")
	return nil
}
