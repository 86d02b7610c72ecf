package main

import (
	"fmt"
	"os"

	"alarm-manager/internal/adapter/primary/cli"
	"alarm-manager/internal/logging"
)

func main() {
	err := cli.NewRootCmd().Execute()
	logging.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
