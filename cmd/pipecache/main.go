// Package main is the entry point for the pipecache CLI.
package main

import (
	"os"

	"github.com/spf13/cobra"

	// Registers the "mysql" database/sql driver used by database components.
	_ "github.com/go-sql-driver/mysql"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pipecache",
		Short: "Pipeline output cache server",
		Long: `pipecache serves resources, images and database blobs through
cacheable pipelines, replaying stored output while it is still valid.`,
		Version:      versionString(),
		SilenceUsage: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newStoreCmd())
	root.AddCommand(newVersionCmd())
	return root
}
