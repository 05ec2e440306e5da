// Command agentgate runs the autonomy gating and handoff service.
package main

import (
	"context"
	"os"

	"github.com/xiaot623/gogo/agentgate/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background()))
}
