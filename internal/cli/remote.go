package cli

import (
	"context"
	"fmt"

	"github.com/sdejongh/replisync/pkg/config"
	"github.com/sdejongh/replisync/pkg/storage"
)

// newRemoteStore builds the store selected by cfg.Remote.Kind
func newRemoteStore(ctx context.Context, cfg *config.Config, transfer storage.Transfer) (storage.RemoteStore, error) {
	remote := cfg.Remote

	switch remote.Kind {
	case config.RemoteFolder:
		return storage.NewFolderStore(transfer), nil

	case config.RemoteS3:
		return storage.NewS3Store(ctx, storage.S3Config{
			Bucket:    remote.S3.Bucket,
			Region:    remote.S3.Region,
			Endpoint:  remote.S3.Endpoint,
			AccessKey: remote.S3.AccessKey,
			SecretKey: remote.S3.SecretKey,
		}, transfer)

	case config.RemoteMinio:
		return storage.NewMinioStore(storage.MinioConfig{
			Endpoint:  remote.Minio.Endpoint,
			Bucket:    remote.Minio.Bucket,
			AccessKey: remote.Minio.AccessKey,
			SecretKey: remote.Minio.SecretKey,
			Region:    remote.Minio.Region,
			UseSSL:    remote.Minio.UseSSL,
		}, transfer)

	case config.RemoteDrive:
		return storage.NewDriveStore(ctx, storage.DriveConfig{
			CredentialsFile: remote.Drive.CredentialsFile,
		}, transfer)

	default:
		return nil, fmt.Errorf("unsupported remote kind: %s (use: folder, s3, minio, gdrive)", remote.Kind)
	}
}
