package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatCmd(opts *options) *cobra.Command {
	var head int

	cmd := &cobra.Command{
		Use:   "stat",
		Short: "Print dataset size, classes and the first samples",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ds, err := openDataset(cmd.Context(), opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "samples: %d\n", ds.Len())
			if classes := ds.Classes(); len(classes) > 0 {
				fmt.Fprintf(out, "classes: %d\n", len(classes))
			}

			samples := ds.Index().Samples()
			for i := 0; i < head && i < len(samples); i++ {
				key, _ := ds.Key(i)
				fmt.Fprintf(out, "%d\t%s\t%d\n", i, key, samples[i].Label)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&head, "head", "n", 5, "number of samples to list")
	return cmd
}
