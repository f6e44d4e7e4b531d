package sync

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdejongh/replisync/pkg/models"
	"github.com/sdejongh/replisync/pkg/replica"
	"github.com/sdejongh/replisync/pkg/storage"
)

const (
	localPath = "/data/takeout.db"
	remoteDir = "/remote"
)

// fakeStore is a folder store with injectable failures
type fakeStore struct {
	*storage.FolderStore
	listErr   error
	uploadErr error
	download  func(ctx context.Context, id, destPath string) error
	uploads   int
	downloads int
}

func (f *fakeStore) List(ctx context.Context, location string) ([]models.RemoteReplica, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.FolderStore.List(ctx, location)
}

func (f *fakeStore) Upload(ctx context.Context, localPath, location string) (models.RemoteReplica, error) {
	f.uploads++
	if f.uploadErr != nil {
		return models.RemoteReplica{}, f.uploadErr
	}
	return f.FolderStore.Upload(ctx, localPath, location)
}

func (f *fakeStore) Download(ctx context.Context, id, destPath string) error {
	f.downloads++
	if f.download != nil {
		return f.download(ctx, id, destPath)
	}
	return f.FolderStore.Download(ctx, id, destPath)
}

// contendedFs fails the first n renames onto dst with a permission error
type contendedFs struct {
	afero.Fs
	dst      string
	failures int
	renames  int
}

func (c *contendedFs) Rename(oldname, newname string) error {
	if newname == c.dst {
		c.renames++
		if c.failures > 0 {
			c.failures--
			return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: os.ErrPermission}
		}
	}
	return c.Fs.Rename(oldname, newname)
}

type fixture struct {
	fs     afero.Fs
	store  *fakeStore
	engine *Engine
}

func newFixture(t *testing.T, fsys afero.Fs, opts ...Option) *fixture {
	t.Helper()
	require.NoError(t, fsys.MkdirAll(remoteDir, 0755))
	require.NoError(t, fsys.MkdirAll("/data", 0755))

	store := &fakeStore{FolderStore: storage.NewFolderStore(storage.Transfer{FS: fsys})}
	opts = append([]Option{
		WithFS(fsys),
		WithReplacer(replica.NewReplacer(fsys, replica.WithBaseDelay(time.Millisecond))),
	}, opts...)

	return &fixture{fs: fsys, store: store, engine: NewEngine(store, opts...)}
}

func (f *fixture) write(t *testing.T, path string, data []byte, epoch int64) {
	t.Helper()
	require.NoError(t, afero.WriteFile(f.fs, path, data, 0644))
	mtime := time.Unix(epoch, 0)
	require.NoError(t, f.fs.Chtimes(path, mtime, mtime))
}

func (f *fixture) read(t *testing.T, path string) []byte {
	t.Helper()
	data, err := afero.ReadFile(f.fs, path)
	require.NoError(t, err)
	return data
}

func (f *fixture) mtime(t *testing.T, path string) int64 {
	t.Helper()
	info, err := f.fs.Stat(path)
	require.NoError(t, err)
	return info.ModTime().Unix()
}

func sized(n int, b byte) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = b
	}
	return data
}

func TestSynchronize_Scenarios(t *testing.T) {
	ctx := context.Background()

	t.Run("LocalNewerUploads", func(t *testing.T) {
		f := newFixture(t, afero.NewMemMapFs())
		f.write(t, localPath, sized(500, 'L'), 100)
		f.write(t, remoteDir+"/takeout.db", sized(500, 'R'), 50)

		result, err := f.engine.Synchronize(ctx, localPath, remoteDir)
		require.NoError(t, err)
		assert.Equal(t, models.ActionUpload, result.Action)
		assert.Equal(t, localPath, result.Path)
		assert.NotEmpty(t, result.ID)
		assert.Equal(t, sized(500, 'L'), f.read(t, remoteDir+"/takeout.db"))
		assert.Equal(t, int64(100), f.mtime(t, remoteDir+"/takeout.db"))
	})

	t.Run("RemoteUnknownTimeDownloads", func(t *testing.T) {
		f := newFixture(t, afero.NewMemMapFs())
		f.write(t, remoteDir+"/takeout.db", sized(900, 'R'), 0)

		result, err := f.engine.Synchronize(ctx, localPath, remoteDir)
		require.NoError(t, err)
		assert.Equal(t, models.ActionDownload, result.Action)
		assert.Equal(t, sized(900, 'R'), f.read(t, localPath))
		assert.Equal(t, int64(900), result.BytesTransferred)
	})

	t.Run("RemoteUnknownTimeSameSizeNoOp", func(t *testing.T) {
		f := newFixture(t, afero.NewMemMapFs())
		f.write(t, localPath, sized(500, 'L'), 100)
		f.write(t, remoteDir+"/takeout.db", sized(500, 'R'), 0)

		result, err := f.engine.Synchronize(ctx, localPath, remoteDir)
		require.NoError(t, err)
		assert.Equal(t, models.ActionNoOp, result.Action)
		assert.Equal(t, sized(500, 'L'), f.read(t, localPath))
		assert.Equal(t, sized(500, 'R'), f.read(t, remoteDir+"/takeout.db"))
		assert.Zero(t, f.store.uploads)
		assert.Zero(t, f.store.downloads)
	})

	t.Run("TransientLockInstallsByRename", func(t *testing.T) {
		fsys := &contendedFs{Fs: afero.NewMemMapFs(), dst: localPath, failures: 3}
		f := newFixture(t, fsys)
		f.write(t, localPath, []byte("old"), 100)
		f.write(t, remoteDir+"/takeout.db", []byte("downloaded"), 200)

		result, err := f.engine.Synchronize(ctx, localPath, remoteDir)
		require.NoError(t, err)
		assert.Equal(t, models.ActionDownload, result.Action)
		assert.False(t, result.Fallback)
		assert.Equal(t, 4, fsys.renames)
		assert.Equal(t, []byte("downloaded"), f.read(t, localPath))
	})

	t.Run("PersistentLockInstallsByShadowCopy", func(t *testing.T) {
		fsys := &contendedFs{Fs: afero.NewMemMapFs(), dst: localPath, failures: replica.DefaultAttempts}
		f := newFixture(t, fsys)
		f.write(t, localPath, []byte("old"), 100)
		f.write(t, remoteDir+"/takeout.db", []byte("downloaded"), 200)

		result, err := f.engine.Synchronize(ctx, localPath, remoteDir)
		require.NoError(t, err)
		assert.True(t, result.Fallback)
		assert.Equal(t, []byte("downloaded"), f.read(t, localPath))

		exists, _ := afero.Exists(f.fs, localPath+downloadSuffix)
		assert.False(t, exists, "download temp should be removed")
	})
}

func TestSynchronize_Idempotent(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		local  []byte
		localT int64
		remote []byte
		remT   int64
		first  models.Action
	}{
		{"Bootstrap", []byte("local only"), 100, nil, 0, models.ActionUpload},
		{"RemoteNewer", []byte("old"), 100, []byte("newer remote"), 200, models.ActionDownload},
		{"LocalNewer", []byte("newer local"), 300, []byte("old"), 200, models.ActionUpload},
		{"RemoteUnknownTime", nil, 0, []byte("remote bytes"), 0, models.ActionDownload},
		{"Converged", []byte("same"), 100, []byte("same"), 100, models.ActionNoOp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, afero.NewMemMapFs())
			if tt.local != nil {
				f.write(t, localPath, tt.local, tt.localT)
			}
			if tt.remote != nil {
				f.write(t, remoteDir+"/takeout.db", tt.remote, tt.remT)
			}

			first, err := f.engine.Synchronize(ctx, localPath, remoteDir)
			require.NoError(t, err)
			assert.Equal(t, tt.first, first.Action)

			second, err := f.engine.Synchronize(ctx, localPath, remoteDir)
			require.NoError(t, err)
			assert.Equal(t, models.ActionNoOp, second.Action, "second call: %s", second.Reason)
		})
	}
}

func TestSynchronize_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("ZeroByteDownload", func(t *testing.T) {
		f := newFixture(t, afero.NewMemMapFs())
		f.write(t, localPath, []byte("precious"), 100)
		f.write(t, remoteDir+"/takeout.db", sized(64, 'R'), 200)
		f.store.download = func(ctx context.Context, id, destPath string) error {
			return afero.WriteFile(f.fs, destPath, nil, 0644)
		}

		_, err := f.engine.Synchronize(ctx, localPath, remoteDir)
		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrEmptyContent)
		assert.Equal(t, []byte("precious"), f.read(t, localPath))
		assert.Equal(t, int64(100), f.mtime(t, localPath))

		exists, _ := afero.Exists(f.fs, localPath+downloadSuffix)
		assert.False(t, exists, "empty temp should be deleted")
	})

	t.Run("DownloadWritesNothing", func(t *testing.T) {
		f := newFixture(t, afero.NewMemMapFs())
		f.write(t, localPath, []byte("precious"), 100)
		f.write(t, remoteDir+"/takeout.db", sized(64, 'R'), 200)
		f.store.download = func(context.Context, string, string) error { return nil }

		_, err := f.engine.Synchronize(ctx, localPath, remoteDir)
		assert.ErrorIs(t, err, models.ErrMissingSource)
		assert.Equal(t, []byte("precious"), f.read(t, localPath))
	})

	t.Run("ListFailure", func(t *testing.T) {
		f := newFixture(t, afero.NewMemMapFs())
		f.write(t, localPath, []byte("precious"), 100)
		cause := errors.New("503 service unavailable")
		f.store.listErr = cause

		_, err := f.engine.Synchronize(ctx, localPath, remoteDir)
		assert.ErrorIs(t, err, models.ErrTransport)
		assert.ErrorIs(t, err, cause)
		assert.Zero(t, f.store.uploads)
	})

	t.Run("DownloadFailure", func(t *testing.T) {
		f := newFixture(t, afero.NewMemMapFs())
		f.write(t, localPath, []byte("precious"), 100)
		f.write(t, remoteDir+"/takeout.db", sized(64, 'R'), 200)
		f.store.download = func(ctx context.Context, id, destPath string) error {
			afero.WriteFile(f.fs, destPath, []byte("par"), 0644)
			return errors.New("connection reset")
		}

		_, err := f.engine.Synchronize(ctx, localPath, remoteDir)
		assert.ErrorIs(t, err, models.ErrTransport)
		assert.Equal(t, []byte("precious"), f.read(t, localPath))

		exists, _ := afero.Exists(f.fs, localPath+downloadSuffix)
		assert.False(t, exists, "partial temp should be deleted")
	})

	t.Run("UploadFailure", func(t *testing.T) {
		f := newFixture(t, afero.NewMemMapFs())
		f.write(t, localPath, []byte("local"), 100)
		f.store.uploadErr = errors.New("quota exceeded")

		_, err := f.engine.Synchronize(ctx, localPath, remoteDir)
		assert.ErrorIs(t, err, models.ErrTransport)
		assert.Equal(t, models.KindTransport, models.KindOf(err))
	})

	t.Run("VerificationFailure", func(t *testing.T) {
		f := newFixture(t, afero.NewMemMapFs(), WithVerifier(rejectAll{}))
		f.write(t, localPath, []byte("precious"), 100)
		f.write(t, remoteDir+"/takeout.db", sized(64, 'R'), 200)

		_, err := f.engine.Synchronize(ctx, localPath, remoteDir)
		assert.ErrorIs(t, err, models.ErrCorruptContent)
		assert.Equal(t, []byte("precious"), f.read(t, localPath))

		exists, _ := afero.Exists(f.fs, localPath+downloadSuffix)
		assert.False(t, exists)
	})

	t.Run("VerifierSideFilesRemoved", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		f := newFixture(t, fsys, WithVerifier(sideFileVerifier{fs: fsys}))
		f.write(t, localPath, []byte("precious"), 100)
		f.write(t, remoteDir+"/takeout.db", sized(64, 'R'), 200)

		_, err := f.engine.Synchronize(ctx, localPath, remoteDir)
		require.NoError(t, err)

		for _, suffix := range []string{"-wal", "-shm"} {
			exists, _ := afero.Exists(fsys, localPath+downloadSuffix+suffix)
			assert.False(t, exists, suffix)
		}
	})

	t.Run("VerifierSideFilesRemovedOnFailure", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		f := newFixture(t, fsys, WithVerifier(sideFileVerifier{fs: fsys, reject: true}))
		f.write(t, localPath, []byte("precious"), 100)
		f.write(t, remoteDir+"/takeout.db", sized(64, 'R'), 200)

		_, err := f.engine.Synchronize(ctx, localPath, remoteDir)
		assert.ErrorIs(t, err, models.ErrCorruptContent)

		for _, suffix := range []string{"", "-wal", "-shm"} {
			exists, _ := afero.Exists(fsys, localPath+downloadSuffix+suffix)
			assert.False(t, exists, suffix)
		}
	})
}

// sideFileVerifier leaves -wal and -shm beside the checked file, as SQLite
// does when it opens a WAL-mode database
type sideFileVerifier struct {
	fs     afero.Fs
	reject bool
}

func (v sideFileVerifier) Verify(ctx context.Context, path string) error {
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := afero.WriteFile(v.fs, path+suffix, []byte("side"), 0644); err != nil {
			return err
		}
	}
	if v.reject {
		return rejectAll{}.Verify(ctx, path)
	}
	return nil
}

type rejectAll struct{}

func (rejectAll) Verify(ctx context.Context, path string) error {
	return models.NewSyncError(models.KindCorruptContent, "verify", path, errors.New("quick_check: page 2 corrupt"))
}

func TestSynchronize_Download(t *testing.T) {
	ctx := context.Background()

	t.Run("StampsRemoteTimeAndClearsSidecars", func(t *testing.T) {
		f := newFixture(t, afero.NewMemMapFs())
		f.write(t, localPath, []byte("old"), 100)
		f.write(t, localPath+"-wal", []byte("wal"), 100)
		f.write(t, remoteDir+"/takeout.db", []byte("new content"), 250)

		_, err := f.engine.Synchronize(ctx, localPath, remoteDir)
		require.NoError(t, err)
		assert.Equal(t, int64(250), f.mtime(t, localPath))

		exists, _ := afero.Exists(f.fs, localPath+"-wal")
		assert.False(t, exists)
	})

	t.Run("RemovesStaleTemp", func(t *testing.T) {
		f := newFixture(t, afero.NewMemMapFs())
		f.write(t, localPath+downloadSuffix, []byte("leftover from a crash, long"), 1)
		f.write(t, localPath+downloadSuffix+"-wal", []byte("leftover wal"), 1)
		f.write(t, remoteDir+"/takeout.db", []byte("fresh"), 250)

		_, err := f.engine.Synchronize(ctx, localPath, remoteDir)
		require.NoError(t, err)
		assert.Equal(t, []byte("fresh"), f.read(t, localPath))

		exists, _ := afero.Exists(f.fs, localPath+downloadSuffix+"-wal")
		assert.False(t, exists)
	})

	t.Run("CreatesParentDirectory", func(t *testing.T) {
		f := newFixture(t, afero.NewMemMapFs())
		f.write(t, remoteDir+"/takeout.db", []byte("fresh"), 250)

		_, err := f.engine.Synchronize(ctx, "/nested/dir/takeout.db", remoteDir)
		require.NoError(t, err)
		assert.Equal(t, []byte("fresh"), f.read(t, "/nested/dir/takeout.db"))
	})

	t.Run("PicksNewestWhenNoExactMatch", func(t *testing.T) {
		f := newFixture(t, afero.NewMemMapFs())
		f.write(t, remoteDir+"/older.db", []byte("older"), 100)
		f.write(t, remoteDir+"/newest.db", []byte("newest"), 300)
		f.write(t, remoteDir+"/notes.txt", []byte("not a database"), 900)

		result, err := f.engine.Synchronize(ctx, localPath, remoteDir)
		require.NoError(t, err)
		require.NotNil(t, result.Remote)
		assert.Equal(t, "newest.db", result.Remote.Name)
		assert.Equal(t, []byte("newest"), f.read(t, localPath))
	})
}

func TestSynchronize_CandidatePattern(t *testing.T) {
	ctx := context.Background()

	t.Run("NonMatchingEntriesIgnored", func(t *testing.T) {
		f := newFixture(t, afero.NewMemMapFs())
		f.write(t, localPath, []byte("local"), 100)
		f.write(t, remoteDir+"/notes.txt", []byte("text"), 900)

		result, err := f.engine.Synchronize(ctx, localPath, remoteDir)
		require.NoError(t, err)
		assert.Equal(t, models.ActionUpload, result.Action)
	})

	t.Run("EmptyPatternAcceptsAll", func(t *testing.T) {
		f := newFixture(t, afero.NewMemMapFs(), WithCandidatePattern(""))
		f.write(t, localPath, []byte("local"), 100)
		f.write(t, remoteDir+"/notes.txt", []byte("text"), 900)

		result, err := f.engine.Synchronize(ctx, localPath, remoteDir)
		require.NoError(t, err)
		assert.Equal(t, models.ActionDownload, result.Action)
	})

	t.Run("NothingAnywhere", func(t *testing.T) {
		f := newFixture(t, afero.NewMemMapFs())

		result, err := f.engine.Synchronize(ctx, localPath, remoteDir)
		require.NoError(t, err)
		assert.Equal(t, models.ActionNoOp, result.Action)
	})
}

func TestPlan(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, afero.NewMemMapFs())
	f.write(t, localPath, []byte("local"), 100)
	f.write(t, remoteDir+"/takeout.db", []byte("remote newer"), 200)

	decision, err := f.engine.Plan(ctx, localPath, remoteDir)
	require.NoError(t, err)
	assert.Equal(t, models.ActionDownload, decision.Action)
	require.NotNil(t, decision.Remote)
	assert.Equal(t, "takeout.db", decision.Remote.Name)

	assert.Equal(t, []byte("local"), f.read(t, localPath))
	assert.Zero(t, f.store.downloads)
}

func TestCatalog(t *testing.T) {
	ctx := context.Background()
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll(remoteDir, 0755))
	store := storage.NewFolderStore(storage.Transfer{FS: fsys})

	t.Run("EmptyLocation", func(t *testing.T) {
		candidate, err := NewCatalog(store, DefaultCandidatePattern).Candidate(ctx, remoteDir, "takeout.db")
		require.NoError(t, err)
		assert.Nil(t, candidate)
	})

	t.Run("MissingLocation", func(t *testing.T) {
		_, err := NewCatalog(store, DefaultCandidatePattern).List(ctx, "/absent")
		assert.ErrorIs(t, err, models.ErrTransport)
	})
}
