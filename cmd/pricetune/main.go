// Command pricetune trains, evaluates and ranks real-estate price models.
//
//	pricetune train --config run.yaml
//	pricetune leaderboard --limit 10
//	pricetune diagnose 21000 34000 0.91 0.74
//	pricetune predict --model models/gbdt_20250301_0900.gob --data new.csv
//	pricetune probe --mode accelerated
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
