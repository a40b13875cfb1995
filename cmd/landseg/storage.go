package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hupe1980/landseg/blobstore"
	minioblob "github.com/hupe1980/landseg/blobstore/minio"
	s3blob "github.com/hupe1980/landseg/blobstore/s3"
	"github.com/hupe1980/landseg/checkpoint"
	"github.com/hupe1980/landseg/codec"
	"github.com/hupe1980/landseg/resource"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// openBlobs opens the configured backend. It returns nil without error
// when no backend is configured.
func openBlobs(ctx context.Context, cfg StorageConfig) (blobstore.BlobStore, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "local":
		return blobstore.NewLocalStore(cfg.Dir), nil
	case "s3":
		var optFns []func(*config.LoadOptions) error
		if cfg.Region != "" {
			optFns = append(optFns, config.WithRegion(cfg.Region))
		}
		awsCfg, err := config.LoadDefaultConfig(ctx, optFns...)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		store := s3blob.NewStore(awss3.NewFromConfig(awsCfg), cfg.Bucket, cfg.Prefix)
		if cfg.CommitTable == "" {
			return store, nil
		}
		return s3blob.NewDDBCommitStore(store, dynamodb.NewFromConfig(awsCfg), cfg.CommitTable, ""), nil
	case "minio":
		client, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("creating minio client: %w", err)
		}
		store := minioblob.NewStore(client, cfg.Bucket, cfg.Prefix)
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

// openCheckpoint wraps the configured backend in a checkpoint store.
func openCheckpoint(ctx context.Context, cfg StorageConfig, rc *resource.Controller, logger *slog.Logger) (*checkpoint.Store, error) {
	blobs, err := openBlobs(ctx, cfg)
	if err != nil || blobs == nil {
		return nil, err
	}

	format, err := checkpoint.ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	c, err := codec.Lookup(cfg.Codec)
	if err != nil {
		return nil, err
	}
	opts := []checkpoint.Option{
		checkpoint.WithFormat(format),
		checkpoint.WithCodec(c),
		checkpoint.WithResourceController(rc),
		checkpoint.WithLogger(logger),
	}
	if cfg.Compression != "" {
		comp, err := checkpoint.ParseCompression(cfg.Compression)
		if err != nil {
			return nil, err
		}
		opts = append(opts, checkpoint.WithCompression(comp))
	}
	return checkpoint.New(blobs, opts...), nil
}
