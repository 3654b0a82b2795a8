package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pithecene-io/imgset/imgset"
	"github.com/pithecene-io/imgset/imgset/backend"
)

var log = logrus.New()

// options are the flags shared by every subcommand.
type options struct {
	configPath  string
	backend     string
	root        string
	annFile     string
	ignoreEmpty bool
	debug       bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "imgset",
		Short:         "Inspect image-classification datasets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if err := godotenv.Load(); err != nil {
				log.Debug("no .env file found, using process environment")
			}
			initLogger(opts.debug)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "backend config file (env IMGSET_* overrides)")
	flags.StringVar(&opts.backend, "backend", "", "override backend kind (local, remote, memory)")
	flags.StringVar(&opts.root, "root", "", "dataset root joined in front of every sample key")
	flags.StringVar(&opts.annFile, "ann-file", "", "annotation file; empty scans root as class folders")
	flags.BoolVar(&opts.ignoreEmpty, "ignore-empty", false, "treat undecodable images as empty samples")
	flags.BoolVarP(&opts.debug, "debug", "d", false, "debug logging")

	cmd.AddCommand(newStatCmd(opts), newGetCmd(opts), newVerifyCmd(opts))
	return cmd
}

func initLogger(debug bool) {
	log.Out = os.Stderr
	if debug {
		log.SetLevel(logrus.DebugLevel)
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
		return
	}
	log.SetLevel(logrus.InfoLevel)
	log.SetFormatter(&logrus.JSONFormatter{})
}

// openDataset loads the backend config and opens the dataset named by opts.
func openDataset(ctx context.Context, opts *options, extra ...imgset.Option) (*imgset.Dataset, error) {
	cfg, err := backend.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.backend != "" {
		cfg.Backend = backend.Kind(opts.backend)
	}

	client, err := backend.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"backend":  cfg.Backend,
		"root":     opts.root,
		"ann_file": opts.annFile,
	}).Debug("opening dataset")

	dsOpts := append([]imgset.Option{
		imgset.WithIgnoreEmpty(opts.ignoreEmpty),
		imgset.WithLogger(log),
	}, extra...)
	return imgset.Open(ctx, client, opts.root, opts.annFile, dsOpts...)
}
