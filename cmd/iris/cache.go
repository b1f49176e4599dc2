package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the analysis cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show entry counts per cache tier",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := openCache()
		defer c.Close()

		if !c.Persistent() {
			fmt.Fprintln(cmd.OutOrStdout(), "cache persistence is off; only in-process entries exist")
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIER\tMEMORY\tPERSISTED\tCAPACITY\tIO ERRORS")
		for _, s := range c.Stats() {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", s.Name, s.Size, s.Persisted, s.Capacity, s.IOErrors)
		}
		return w.Flush()
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached structure, decision and result",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := openCache()
		defer c.Close()
		c.Clear()
		logger.WithField("directory", cfg.Cache.Directory).Info("cache cleared")
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
