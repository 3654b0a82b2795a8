// Command imgset inspects image-classification datasets on a configured
// storage backend.
//
//	imgset stat   --config backend.yaml --root data/imagenet/val --ann-file data/imagenet/meta/val.txt
//	imgset get 42 --config backend.yaml --root data/imagenet/train --out sample.png
//	imgset verify --config backend.yaml --root data/imagenet/train
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		log.WithError(err).Error("imgset failed")
		os.Exit(1)
	}
}
