// Package storage provides an abstraction layer for object storage services.
//
// It wraps the MinIO Go client so that reconciliation sources can be read from
// a bucket and run reports can be archived next to them. Both AWS S3 and
// self-hosted MinIO instances are supported.
//
// # Client Interface
//
// The Client interface abstracts the underlying storage provider, making it easier
// to mock storage interactions for unit testing (as seen in core/storage/mocks).
//
// # Object Locations
//
// Command line arguments of the form s3://bucket/key are resolved with ParseURI.
// PutJSON uploads a JSON document and creates the bucket on first use.
//
// # Usage
//
//	client, err := storage.NewClient(cfg.Storage)
//	bucket, key, err := storage.ParseURI("s3://imports/mls.csv")
//	body, err := client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
package storage
