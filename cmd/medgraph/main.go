package main

import (
	"context"
	"fmt"
	"os"

	"github.com/yungbote/medgraph/internal/app"
	"github.com/yungbote/medgraph/internal/cli"
	"github.com/yungbote/medgraph/internal/platform/shutdown"
)

func main() {
	ctx, stop := shutdown.NotifyContext(context.Background())
	err := cli.NewRootCmd(app.Options{}).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "medgraph:", err)
		os.Exit(1)
	}
}
