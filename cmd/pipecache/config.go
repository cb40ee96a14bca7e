package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/pipecache/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration files",
	}

	var path string
	check := &cobra.Command{
		Use:   "check",
		Short: "Validate a configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: ok\n", path)
			for _, m := range cfg.Mounts {
				store := m.Store
				if store == "" {
					store = "-"
				}
				fmt.Fprintf(out, "  mount %-16s %-24s store=%s steps=%d\n", m.Name, m.Path, store, len(m.Steps))
			}
			names := make([]string, 0, len(cfg.Stores))
			for name := range cfg.Stores {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(out, "  store %-16s %s\n", name, cfg.Stores[name].Directory)
			}
			return nil
		},
	}
	check.Flags().StringVarP(&path, "config", "c", "pipecache.yaml", "configuration file")

	cmd.AddCommand(check)
	return cmd
}
