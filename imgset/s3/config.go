package s3

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultRegion is used when ClientConfig.Region is empty. S3-compatible
// gateways accept any region name.
const DefaultRegion = "us-east-1"

// ClientConfig describes one S3-compatible endpoint.
type ClientConfig struct {
	// Region defaults to DefaultRegion.
	Region string

	// Endpoint overrides the AWS endpoint, for example
	// "http://ceph-gw.internal:7480" for a Ceph RGW cluster.
	Endpoint string

	// UsePathStyle addresses buckets as "endpoint/bucket" instead of
	// "bucket.endpoint". Most self-hosted gateways need it.
	UsePathStyle bool

	// AccessKey and SecretKey select static credentials. When both are
	// empty the default AWS credential chain is used.
	AccessKey string
	SecretKey string
}

// NewClient builds an S3 client for cfg:
//
//	client, err := s3.NewClient(ctx, s3.ClientConfig{
//	    Endpoint:     "http://ceph-gw.internal:7480",
//	    UsePathStyle: true,
//	    AccessKey:    accessKey,
//	    SecretKey:    secretKey,
//	})
func NewClient(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = DefaultRegion
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}
