package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/omniarb/arbengine/cmd"
	"github.com/omniarb/arbengine/utils"

	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		utils.GetLogger().Error("command failed", zap.Error(err))
		utils.CleanupLogger()
		os.Exit(1)
	}
	utils.CleanupLogger()
}
