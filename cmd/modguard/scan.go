package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/buildforge/modguard/internal/logging"
	"github.com/buildforge/modguard/internal/scanner"
)

var scanCmd = &cobra.Command{
	Use:   "scan [root]",
	Short: "List the modules of a tree with their derived hierarchy roles",
	Long: `Scan walks the tree, reads every build descriptor, and prints each
module with its derived role, layer, and declared children.

Examples:
  # Scan the working directory
  modguard scan

  # Scan a specific tree as JSON
  modguard scan -o json /repos/platform`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		rootDir = args[0]
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	tree, err := scanner.New(cfg.Project.Descriptor, log).Scan(logging.WithLogger(cmd.Context(), log), cfg.Project.Root)
	if err != nil {
		return err
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tree.Nodes)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODULE\tROLE\tLAYER\tCHILDREN\tDIR")
	for _, n := range tree.Nodes {
		rel, err := filepath.Rel(cfg.Project.Root, n.Dir)
		if err != nil {
			rel = n.Dir
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", n.Identity, n.Role, n.Layer, len(n.Children), rel)
	}
	return w.Flush()
}
