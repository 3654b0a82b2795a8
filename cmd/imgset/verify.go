package main

import (
	"errors"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// errVerifyFailed reports that at least one sample could not be loaded.
var errVerifyFailed = errors.New("verify: some samples failed")

func newVerifyCmd(opts *options) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Fetch and decode every sample, reporting failures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			ds, err := openDataset(ctx, opts)
			if err != nil {
				return err
			}

			bar := progressbar.NewOptions(ds.Len(),
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionSetDescription("verifying"),
				progressbar.OptionShowCount(),
				progressbar.OptionSetVisibility(!quiet),
			)

			var empty, failed int
			for i := 0; i < ds.Len(); i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				item, err := ds.Get(ctx, i)
				switch {
				case err != nil:
					failed++
					log.WithFields(logrus.Fields{"index": i}).WithError(err).Warn("sample failed")
				case item.Empty():
					empty++
					log.WithFields(logrus.Fields{"index": i, "key": item.Key}).Warn("sample is empty")
				}
				_ = bar.Add(1)
			}
			_ = bar.Finish()

			fmt.Fprintf(cmd.OutOrStdout(), "samples: %d ok: %d empty: %d failed: %d\n",
				ds.Len(), ds.Len()-empty-failed, empty, failed)
			if empty+failed > 0 {
				return fmt.Errorf("%w: %d of %d", errVerifyFailed, empty+failed, ds.Len())
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "hide the progress bar")
	return cmd
}
