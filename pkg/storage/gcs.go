package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"
)

// BucketType selects between the raw upload bucket and the processed
// archive bucket.
type BucketType string

const (
	BucketRaw       BucketType = "raw"
	BucketProcessed BucketType = "processed"
)

// ObjectInfo describes a stored document blob.
type ObjectInfo struct {
	BlobPath    string            `json:"blob_path"`
	Bucket      string            `json:"bucket"`
	Size        int64             `json:"size"`
	ContentType string            `json:"content_type"`
	Created     time.Time         `json:"created"`
	Updated     time.Time         `json:"updated"`
	Metadata    map[string]string `json:"metadata"`
}

// ObjectStore manages document blobs across the raw and processed
// buckets.
type ObjectStore struct {
	client          *gcs.Client
	rawBucket       string
	processedBucket string
	logger          *logrus.Logger
}

// NewObjectStore wraps an existing Cloud Storage client.
func NewObjectStore(client *gcs.Client, rawBucket, processedBucket string) *ObjectStore {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &ObjectStore{
		client:          client,
		rawBucket:       rawBucket,
		processedBucket: processedBucket,
		logger:          logger,
	}
}

func (o *ObjectStore) bucketName(bucketType BucketType) string {
	if bucketType == BucketProcessed {
		return o.processedBucket
	}
	return o.rawBucket
}

// blobPath builds the date-prefixed object name for a document.
func blobPath(documentID, filename string) string {
	datePrefix := time.Now().UTC().Format("2006/01/02")
	return fmt.Sprintf("%s/%s%s", datePrefix, documentID, filepath.Ext(filename))
}

// Upload writes a document into the raw bucket under a date-prefixed
// path and returns that path.
func (o *ObjectStore) Upload(ctx context.Context, content io.Reader, documentID, filename, contentType string, metadata map[string]string) (string, error) {
	path := blobPath(documentID, filename)

	attrs := map[string]string{
		"document_id":       documentID,
		"original_filename": filename,
		"upload_timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range metadata {
		attrs[k] = v
	}

	w := o.client.Bucket(o.rawBucket).Object(path).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = attrs

	if _, err := io.Copy(w, content); err != nil {
		w.Close()
		return "", errors.Wrapf(err, "upload document %s", documentID)
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrapf(err, "upload document %s", documentID)
	}

	o.logger.WithFields(logrus.Fields{
		"document_id": documentID,
		"blob_path":   path,
	}).Info("Uploaded document")
	return path, nil
}

// Download reads a document blob fully into memory.
func (o *ObjectStore) Download(ctx context.Context, path string, bucketType BucketType) ([]byte, error) {
	r, err := o.client.Bucket(o.bucketName(bucketType)).Object(path).NewReader(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer r.Close()

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return content, nil
}

// SignedURL issues a V4 signed URL for direct blob access.
func (o *ObjectStore) SignedURL(path string, bucketType BucketType, method string, expiration time.Duration) (string, error) {
	if method == "" {
		method = "GET"
	}
	if expiration <= 0 {
		expiration = time.Hour
	}

	url, err := o.client.Bucket(o.bucketName(bucketType)).SignedURL(path, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  method,
		Expires: time.Now().Add(expiration),
	})
	if err != nil {
		return "", errors.Wrapf(err, "sign url for %s", path)
	}
	return url, nil
}

// MoveToProcessed copies a blob from the raw bucket into the processed
// bucket under a fresh date prefix and deletes the original.
func (o *ObjectStore) MoveToProcessed(ctx context.Context, sourcePath, documentID string) (string, error) {
	destPath := blobPath(documentID, sourcePath)

	src := o.client.Bucket(o.rawBucket).Object(sourcePath)
	dst := o.client.Bucket(o.processedBucket).Object(destPath)

	if _, err := dst.CopierFrom(src).Run(ctx); err != nil {
		return "", errors.Wrapf(err, "copy %s to processed", sourcePath)
	}
	if err := src.Delete(ctx); err != nil {
		return "", errors.Wrapf(err, "delete %s after copy", sourcePath)
	}

	o.logger.WithFields(logrus.Fields{
		"source": sourcePath,
		"dest":   destPath,
	}).Info("Moved document to processed bucket")
	return destPath, nil
}

// Stat fetches metadata for a blob.
func (o *ObjectStore) Stat(ctx context.Context, path string, bucketType BucketType) (*ObjectInfo, error) {
	attrs, err := o.client.Bucket(o.bucketName(bucketType)).Object(path).Attrs(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	return objectInfo(attrs), nil
}

// List enumerates blobs under a prefix, up to maxResults.
func (o *ObjectStore) List(ctx context.Context, prefix string, bucketType BucketType, maxResults int) ([]ObjectInfo, error) {
	if maxResults <= 0 {
		maxResults = 100
	}

	it := o.client.Bucket(o.bucketName(bucketType)).Objects(ctx, &gcs.Query{Prefix: prefix})

	infos := []ObjectInfo{}
	for len(infos) < maxResults {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "list %s", prefix)
		}
		infos = append(infos, *objectInfo(attrs))
	}
	return infos, nil
}

// Delete removes a blob.
func (o *ObjectStore) Delete(ctx context.Context, path string, bucketType BucketType) error {
	if err := o.client.Bucket(o.bucketName(bucketType)).Object(path).Delete(ctx); err != nil {
		return errors.Wrapf(err, "delete %s", path)
	}
	o.logger.WithField("blob_path", path).Info("Deleted document")
	return nil
}

func objectInfo(attrs *gcs.ObjectAttrs) *ObjectInfo {
	return &ObjectInfo{
		BlobPath:    attrs.Name,
		Bucket:      attrs.Bucket,
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
		Created:     attrs.Created,
		Updated:     attrs.Updated,
		Metadata:    attrs.Metadata,
	}
}
