package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sdejongh/replisync/pkg/models"
)

// MinioConfig configures a MinIO remote
type MinioConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// MinioStore keeps replicas as objects under a key prefix on a MinIO server.
// The location is the prefix.
type MinioStore struct {
	client   *minio.Client
	bucket   string
	transfer Transfer
}

// NewMinioStore creates a MinIO client
func NewMinioStore(cfg MinioConfig, t Transfer) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &MinioStore{client: client, bucket: cfg.Bucket, transfer: t}, nil
}

// Name identifies the store kind
func (m *MinioStore) Name() string {
	return "minio"
}

// List returns the objects directly under the location prefix, newest first
func (m *MinioStore) List(ctx context.Context, location string) ([]models.RemoteReplica, error) {
	prefix := listPrefix(location)

	var records []models.RemoteReplica
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:       prefix,
		Recursive:    false,
		WithMetadata: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", obj.Err)
		}
		if obj.Key == prefix || strings.HasSuffix(obj.Key, "/") {
			continue
		}

		modified, ok := mtimeFromMetadata(obj.UserMetadata)
		if !ok {
			stat, err := m.client.StatObject(ctx, m.bucket, obj.Key, minio.StatObjectOptions{})
			if err != nil {
				return nil, fmt.Errorf("failed to inspect object %s: %w", obj.Key, err)
			}
			if modified, ok = mtimeFromMetadata(stat.UserMetadata); !ok {
				modified = models.Epoch(obj.LastModified)
			}
		}

		records = append(records, models.RemoteReplica{
			Name:         path.Base(obj.Key),
			ID:           obj.Key,
			ModifiedTime: modified,
			Size:         obj.Size,
		})
	}

	sortNewestFirst(records)
	return records, nil
}

// Upload puts the local file under the location prefix
func (m *MinioStore) Upload(ctx context.Context, localPath, location string) (models.RemoteReplica, error) {
	file, info, err := m.transfer.openLocal(localPath)
	if err != nil {
		return models.RemoteReplica{}, err
	}
	defer file.Close()

	name := path.Base(strings.ReplaceAll(localPath, "\\", "/"))
	key := joinKey(location, name)

	body, done := m.transfer.reader(ctx, name, info.Size(), file)
	defer done()

	_, err = m.client.PutObject(ctx, m.bucket, key, body, info.Size(), minio.PutObjectOptions{
		ContentType:  "application/octet-stream",
		UserMetadata: mtimeMetadata(info.ModTime()),
	})
	if err != nil {
		return models.RemoteReplica{}, fmt.Errorf("failed to upload object %s: %w", key, err)
	}

	return models.RemoteReplica{
		Name:         name,
		ID:           key,
		ModifiedTime: models.Epoch(info.ModTime()),
		Size:         info.Size(),
	}, nil
}

// Download streams the object with key id into destPath
func (m *MinioStore) Download(ctx context.Context, id, destPath string) error {
	obj, err := m.client.GetObject(ctx, m.bucket, id, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to get object %s: %w", id, err)
	}
	defer obj.Close()

	stat, err := obj.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat object %s: %w", id, err)
	}

	return m.transfer.receive(ctx, path.Base(id), stat.Size, obj, destPath)
}

// Probe checks that the bucket exists
func (m *MinioStore) Probe(ctx context.Context, location string) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("bucket %s is not reachable: %w", m.bucket, err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", m.bucket)
	}
	return nil
}

// Close releases resources (the client holds none that need closing)
func (m *MinioStore) Close() error {
	return nil
}

var _ RemoteStore = (*MinioStore)(nil)
