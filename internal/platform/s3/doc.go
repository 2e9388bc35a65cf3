// Package s3 provides a small client for S3 compatible object storage.
//
// The outputs store uses it to keep apply results in a bucket so several
// operators can share one deployment.
package s3
