package main

import (
	"fmt"
	"io"

	"github.com/iwvelando/mpopf/internal/ref"
	"github.com/iwvelando/mpopf/pkg/powerdata"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func newRefCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ref <case file>",
		Short: "Print the per-unit reference summary of a case file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			network, err := powerdata.Load(args[0])
			if err != nil {
				return err
			}
			rf, err := ref.GetRef(network)
			if err != nil {
				return fmt.Errorf("failed to build reference for %s: %w", args[0], err)
			}
			return printRef(cmd.OutOrStdout(), rf)
		},
	}
}

func printRef(w io.Writer, rf *ref.Ref) error {
	p := message.NewPrinter(language.English)
	pd, qd := rf.TotalLoad()
	_, err := p.Fprintf(w, "Case %s (base %.1f MVA, reference bus %d)\n"+
		"Buses: %d\nGenerators: %d\nBranches: %d (%d arcs)\n"+
		"Load: %.3f MW, %.3f MVAr\n",
		rf.Name, rf.BaseMVA, rf.RefBus(),
		len(rf.BusIDs), len(rf.GenIDs), len(rf.BranchIDs), len(rf.Arcs),
		pd*rf.BaseMVA, qd*rf.BaseMVA)
	return err
}
