package main

import (
	"fmt"
	"image/png"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pithecene-io/imgset/imgset"
	"github.com/pithecene-io/imgset/imgset/transform"
)

func newGetCmd(opts *options) *cobra.Command {
	var (
		outPath string
		resize  int
		crop    int
	)

	cmd := &cobra.Command{
		Use:   "get INDEX",
		Short: "Fetch and decode one sample",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("index %q: %w", args[0], err)
			}

			var extra []imgset.Option
			if t := buildTransform(resize, crop); t != nil {
				extra = append(extra, imgset.WithTransform(t))
			}
			ds, err := openDataset(cmd.Context(), opts, extra...)
			if err != nil {
				return err
			}

			item, err := ds.Get(cmd.Context(), idx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if item.Empty() {
				fmt.Fprintf(out, "%d\t%s\t%d\tempty\n", idx, item.Key, item.Label)
				return nil
			}
			size := item.Image.Bounds().Size()
			fmt.Fprintf(out, "%d\t%s\t%d\t%dx%d\t%s\n", idx, item.Key, item.Label, size.X, size.Y, imgset.Mode(item.Image))

			if outPath == "" {
				return nil
			}
			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			if err := png.Encode(f, item.Image); err != nil {
				_ = f.Close()
				return fmt.Errorf("writing %s: %w", outPath, err)
			}
			return f.Close()
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the decoded image as PNG")
	cmd.Flags().IntVar(&resize, "resize", 0, "resize the shorter side before cropping")
	cmd.Flags().IntVar(&crop, "crop", 0, "center crop to a square of this size")
	return cmd
}

func buildTransform(resize, crop int) imgset.Transform {
	var ts []imgset.Transform
	if resize > 0 {
		ts = append(ts, transform.ResizeShorter(resize))
	}
	if crop > 0 {
		ts = append(ts, transform.CenterCrop(crop, crop))
	}
	if len(ts) == 0 {
		return nil
	}
	return transform.Compose(ts...)
}
