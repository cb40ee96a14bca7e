package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/pipecache/admin"
	"github.com/jonwraymond/pipecache/store"
)

func newStoreCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Inspect and evict entries of a store region",
		Long: `Store operates directly on a store directory. It does not take the
exclusive lock, so it can be used next to a running server.`,
	}
	cmd.PersistentFlags().StringVarP(&dir, "dir", "d", "", "store directory")
	_ = cmd.MarkPersistentFlagRequired("dir")

	open := func() (*store.FilesystemStore, error) {
		return store.New(store.Config{Directory: dir})
	}

	var prefix string
	keys := &cobra.Command{
		Use:   "keys",
		Short: "List keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			defer s.Close()
			all, err := s.Keys(cmd.Context())
			if err != nil {
				return err
			}
			for _, k := range all {
				if strings.HasPrefix(k, prefix) {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}
			}
			return nil
		},
	}
	keys.Flags().StringVar(&prefix, "prefix", "", "only keys starting with prefix")

	size := &cobra.Command{
		Use:   "size",
		Short: "Count entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			defer s.Close()
			n, err := s.Size(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show KEY",
		Short: "Describe a stored pipeline entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			defer s.Close()
			data, ok := s.Get(cmd.Context(), args[0])
			if !ok {
				return fmt.Errorf("no such key %q", args[0])
			}
			info, err := admin.Describe(args[0], data)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}

	rm := &cobra.Command{
		Use:   "rm KEY...",
		Short: "Remove entries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			defer s.Close()
			var errs []error
			for _, k := range args {
				if !s.ContainsKey(cmd.Context(), k) {
					errs = append(errs, fmt.Errorf("no such key %q", k))
					continue
				}
				if err := s.Remove(cmd.Context(), k); err != nil {
					errs = append(errs, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", k)
			}
			return errors.Join(errs...)
		},
	}

	cmd.AddCommand(keys, size, show, rm)
	return cmd
}
