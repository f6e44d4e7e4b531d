package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/sdejongh/replisync/pkg/models"
)

const (
	driveFolderMime = "application/vnd.google-apps.folder"
	driveFileFields = "id, name, modifiedTime, size"
)

// DriveConfig configures a Google Drive remote
type DriveConfig struct {
	// CredentialsFile is a service account or authorized user JSON file
	CredentialsFile string
}

// DriveStore keeps replicas in a Google Drive folder. The location is the folder id.
type DriveStore struct {
	service  *drive.Service
	transfer Transfer
}

// NewDriveStore creates a Drive client
func NewDriveStore(ctx context.Context, cfg DriveConfig, t Transfer) (*DriveStore, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	opts = append(opts, option.WithScopes(drive.DriveScope))

	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive client: %w", err)
	}
	return NewDriveStoreWithService(service, t), nil
}

// NewDriveStoreWithService wraps an existing Drive service
func NewDriveStoreWithService(service *drive.Service, t Transfer) *DriveStore {
	return &DriveStore{service: service, transfer: t}
}

// Name identifies the store kind
func (d *DriveStore) Name() string {
	return "gdrive"
}

// List returns the non-trashed files in the folder, newest first
func (d *DriveStore) List(ctx context.Context, location string) ([]models.RemoteReplica, error) {
	query := fmt.Sprintf("'%s' in parents and trashed = false and mimeType != '%s'",
		driveEscape(location), driveFolderMime)

	var records []models.RemoteReplica
	pageToken := ""
	for {
		call := d.service.Files.List().
			Q(query).
			Fields("nextPageToken, files(" + driveFileFields + ")").
			OrderBy("modifiedTime desc").
			PageSize(100).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		page, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list drive folder: %w", err)
		}
		for _, f := range page.Files {
			records = append(records, driveRecord(f))
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	sortNewestFirst(records)
	return records, nil
}

// Upload updates the file with the same name in the folder, or creates it
func (d *DriveStore) Upload(ctx context.Context, localPath, location string) (models.RemoteReplica, error) {
	file, info, err := d.transfer.openLocal(localPath)
	if err != nil {
		return models.RemoteReplica{}, err
	}
	defer file.Close()

	name := filepath.Base(localPath)
	existingID, err := d.findByName(ctx, location, name)
	if err != nil {
		return models.RemoteReplica{}, err
	}

	body, done := d.transfer.reader(ctx, name, info.Size(), file)
	defer done()

	modified := info.ModTime().UTC().Format(time.RFC3339)

	var uploaded *drive.File
	if existingID != "" {
		uploaded, err = d.service.Files.Update(existingID, &drive.File{ModifiedTime: modified}).
			Media(body).
			Fields(driveFileFields).
			Context(ctx).
			Do()
	} else {
		uploaded, err = d.service.Files.Create(&drive.File{
			Name:         name,
			Parents:      []string{location},
			ModifiedTime: modified,
		}).
			Media(body).
			Fields(driveFileFields).
			Context(ctx).
			Do()
	}
	if err != nil {
		return models.RemoteReplica{}, fmt.Errorf("failed to upload %s to drive: %w", name, err)
	}

	return driveRecord(uploaded), nil
}

// Download writes the media of file id to destPath
func (d *DriveStore) Download(ctx context.Context, id, destPath string) error {
	resp, err := d.service.Files.Get(id).Context(ctx).Download()
	if err != nil {
		return fmt.Errorf("failed to download drive file %s: %w", id, err)
	}
	defer resp.Body.Close()

	return d.transfer.receive(ctx, filepath.Base(destPath), resp.ContentLength, resp.Body, destPath)
}

// Probe checks that location is a reachable, non-trashed folder
func (d *DriveStore) Probe(ctx context.Context, location string) error {
	f, err := d.service.Files.Get(location).Fields("id, mimeType, trashed").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("drive folder %s is not reachable: %w", location, err)
	}
	if f.MimeType != driveFolderMime {
		return fmt.Errorf("drive item %s is not a folder", location)
	}
	if f.Trashed {
		return fmt.Errorf("drive folder %s is trashed", location)
	}
	return nil
}

// Close releases resources (the service holds none that need closing)
func (d *DriveStore) Close() error {
	return nil
}

func (d *DriveStore) findByName(ctx context.Context, location, name string) (string, error) {
	query := fmt.Sprintf("'%s' in parents and name = '%s' and trashed = false",
		driveEscape(location), driveEscape(name))

	list, err := d.service.Files.List().
		Q(query).
		Fields("files(id)").
		OrderBy("modifiedTime desc").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to look up %s in drive folder: %w", name, err)
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].Id, nil
}

func driveRecord(f *drive.File) models.RemoteReplica {
	var modified int64
	if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
		modified = models.Epoch(t)
	}
	return models.RemoteReplica{
		Name:         f.Name,
		ID:           f.Id,
		ModifiedTime: modified,
		Size:         f.Size,
	}
}

// driveEscape escapes a value for a single-quoted Drive query literal
func driveEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

var _ RemoteStore = (*DriveStore)(nil)
