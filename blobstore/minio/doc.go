// Package minio provides a BlobStore on top of the MinIO client, for MinIO
// and other S3-compatible object stores (Ceph, Garage, SeaweedFS).
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    return err
//	}
//	store := minioblob.NewStore(client, "landuse", "runs/2021/")
//	if err := store.EnsureBucket(ctx); err != nil {
//	    return err
//	}
//
// Unlike the s3 package it needs no AWS SDK, which suits air-gapped
// statistical environments.
package minio
