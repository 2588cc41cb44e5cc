package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/fentz26/taskchat/internal/api"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of taskchat",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("taskchat version %s (%s/%s)\n", api.Version, runtime.GOOS, runtime.GOARCH)
		if health, err := CheckHealth(); err == nil {
			fmt.Printf("daemon version %s (db %s)\n", health.Version, health.DB)
		}
	},
}
