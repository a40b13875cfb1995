// Package s3 provides Amazon S3 implementations of blobstore.BlobStore.
//
// Store keeps checkpoints and audit logs in a bucket:
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	if err != nil {
//	    return err
//	}
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "landuse-runs", "2021/")
//
// DDBCommitStore wraps a Store and moves the CURRENT run-state pointer into
// a DynamoDB table, so two runs sharing a prefix cannot both advance it.
//
// Features:
//
//   - Range reads for partial fetches
//   - Multipart uploads with CRC32C checksums
//   - Automatic pagination for listing
package s3
