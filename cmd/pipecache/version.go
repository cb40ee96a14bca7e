package main

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X main.version=... -X main.commit=... -X main.date=...".
var (
	version = "dev"
	commit  = ""
	date    = ""
)

func revision() string {
	if commit != "" {
		return commit
	}
	return vcsRevision()
}

func versionString() string {
	if rev := revision(); rev != "" {
		return version + " (" + rev + ")"
	}
	return version
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 12 {
			return s.Value[:12]
		}
	}
	return ""
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pipecache version: %s\n", version)
			if rev := revision(); rev != "" {
				fmt.Fprintf(out, "  git commit: %s\n", rev)
			}
			if date != "" {
				fmt.Fprintf(out, "  build date: %s\n", date)
			}
			fmt.Fprintf(out, "  go version: %s\n", runtime.Version())
		},
	}
}
