// Command crater is the orchestration core's CLI: it runs the server, runs
// an agent, issues operator commands (create/edit/abort), and validates
// configuration (§6).
package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/codeready-toolchain/crater/cmd/crater/cmd"
)

func main() {
	_ = godotenv.Load() // optional local .env for CRATER_DB_*/CRATER_AGENT_* during development

	os.Exit(cmd.Execute())
}
