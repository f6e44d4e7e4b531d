package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/afero"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// driveServer is an in-memory Drive v3 endpoint covering files.list, files.get,
// media download and multipart create/update
type driveServer struct {
	mu      sync.Mutex
	files   map[string]*driveEntry
	nextID  int
	creates int
	updates int
}

type driveEntry struct {
	file drive.File
	data []byte
}

var (
	driveParentQuery = regexp.MustCompile(`'((?:[^'\\]|\\.)*)' in parents`)
	driveNameQuery   = regexp.MustCompile(`name = '((?:[^'\\]|\\.)*)'`)
)

func newDriveServer(t *testing.T) (*driveServer, *DriveStore, afero.Fs) {
	t.Helper()
	d := &driveServer{files: make(map[string]*driveEntry)}
	srv := httptest.NewServer(d)
	t.Cleanup(srv.Close)

	service, err := drive.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/drive/v3/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("drive.NewService() error = %v", err)
	}

	fsys := afero.NewMemMapFs()
	return d, NewDriveStoreWithService(service, Transfer{FS: fsys}), fsys
}

func (d *driveServer) add(f drive.File, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f.Size = int64(len(data))
	d.files[f.Id] = &driveEntry{file: f, data: data}
}

func (d *driveServer) calls() (creates, updates int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.creates, d.updates
}

func (d *driveServer) named(parent, name string) []drive.File {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []drive.File
	for _, e := range d.files {
		if e.file.Name == name && len(e.file.Parents) > 0 && e.file.Parents[0] == parent {
			out = append(out, e.file)
		}
	}
	return out
}

func (d *driveServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p := strings.TrimPrefix(r.URL.Path, "/upload")
	p = strings.TrimPrefix(p, "/drive/v3")

	switch {
	case p == "/files" && r.Method == http.MethodGet:
		d.list(w, r)
	case p == "/files" && r.Method == http.MethodPost:
		d.write(w, r, "")
	case strings.HasPrefix(p, "/files/") && r.Method == http.MethodPatch:
		d.write(w, r, strings.TrimPrefix(p, "/files/"))
	case strings.HasPrefix(p, "/files/") && r.Method == http.MethodGet:
		d.get(w, r, strings.TrimPrefix(p, "/files/"))
	default:
		writeDriveError(w, http.StatusNotImplemented, "unsupported call "+r.Method+" "+p)
	}
}

func (d *driveServer) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	parent := unquoteDrive(driveParentQuery, q)
	name := unquoteDrive(driveNameQuery, q)
	skipFolders := strings.Contains(q, "mimeType != '"+driveFolderMime+"'")

	d.mu.Lock()
	var files []*drive.File
	for _, e := range d.files {
		f := e.file
		if f.Trashed || len(f.Parents) == 0 || f.Parents[0] != parent {
			continue
		}
		if name != "" && f.Name != name {
			continue
		}
		if skipFolders && f.MimeType == driveFolderMime {
			continue
		}
		files = append(files, &f)
	}
	d.mu.Unlock()

	sort.Slice(files, func(i, j int) bool { return files[i].ModifiedTime > files[j].ModifiedTime })
	writeDriveJSON(w, &drive.FileList{Files: files})
}

func (d *driveServer) get(w http.ResponseWriter, r *http.Request, id string) {
	d.mu.Lock()
	e, ok := d.files[id]
	var f drive.File
	var data []byte
	if ok {
		f, data = e.file, e.data
	}
	d.mu.Unlock()

	if !ok {
		writeDriveError(w, http.StatusNotFound, "File not found: "+id)
		return
	}
	if r.URL.Query().Get("alt") == "media" {
		w.Header().Set("Content-Length", fmt.Sprint(len(data)))
		w.Write(data)
		return
	}
	writeDriveJSON(w, &f)
}

// write handles a multipart create (id == "") or update
func (d *driveServer) write(w http.ResponseWriter, r *http.Request, id string) {
	meta, data, err := readDriveUpload(r)
	if err != nil {
		writeDriveError(w, http.StatusBadRequest, err.Error())
		return
	}

	d.mu.Lock()
	var e *driveEntry
	if id == "" {
		d.nextID++
		d.creates++
		e = &driveEntry{file: drive.File{
			Id:       fmt.Sprintf("file-%d", d.nextID),
			Name:     meta.Name,
			Parents:  meta.Parents,
			MimeType: "application/octet-stream",
		}}
		d.files[e.file.Id] = e
	} else {
		d.updates++
		e = d.files[id]
	}
	if e == nil {
		d.mu.Unlock()
		writeDriveError(w, http.StatusNotFound, "File not found: "+id)
		return
	}
	e.data = data
	e.file.Size = int64(len(data))
	e.file.ModifiedTime = meta.ModifiedTime
	if e.file.ModifiedTime == "" {
		e.file.ModifiedTime = time.Now().UTC().Format(time.RFC3339)
	}
	f := e.file
	d.mu.Unlock()

	writeDriveJSON(w, &f)
}

func readDriveUpload(r *http.Request) (drive.File, []byte, error) {
	var meta drive.File
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return meta, nil, fmt.Errorf("expected a multipart upload, got %q", r.Header.Get("Content-Type"))
	}

	mr := multipart.NewReader(r.Body, params["boundary"])
	part, err := mr.NextPart()
	if err != nil {
		return meta, nil, err
	}
	if err := json.NewDecoder(part).Decode(&meta); err != nil {
		return meta, nil, err
	}
	part, err = mr.NextPart()
	if err != nil {
		return meta, nil, err
	}
	data, err := io.ReadAll(part)
	return meta, data, err
}

func unquoteDrive(re *regexp.Regexp, q string) string {
	m := re.FindStringSubmatch(q)
	if m == nil {
		return ""
	}
	return strings.NewReplacer(`\'`, `'`, `\\`, `\`).Replace(m[1])
}

func writeDriveJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeDriveError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":{"code":%d,"message":%q}}`, status, msg)
}

// TestDriveUpload tests create-then-update uploads and the mtime they leave behind
func TestDriveUpload(t *testing.T) {
	ctx := context.Background()

	t.Run("CreateThenUpdate", func(t *testing.T) {
		server, store, fsys := newDriveServer(t)
		first := time.Unix(1_600_000_000, 0)
		writeMemFile(t, fsys, "/data/takeout.db", []byte("version one"), first)

		created, err := store.Upload(ctx, "/data/takeout.db", "folder-1")
		if err != nil {
			t.Fatalf("Upload() error = %v", err)
		}
		if created.ModifiedTime != first.Unix() || created.Size != 11 || created.Name != "takeout.db" {
			t.Errorf("Upload() = %+v", created)
		}

		second := time.Unix(1_600_000_500, 0)
		writeMemFile(t, fsys, "/data/takeout.db", []byte("version two!"), second)
		updated, err := store.Upload(ctx, "/data/takeout.db", "folder-1")
		if err != nil {
			t.Fatalf("second Upload() error = %v", err)
		}
		if updated.ID != created.ID {
			t.Errorf("second upload created %s, want an update of %s", updated.ID, created.ID)
		}
		if creates, updates := server.calls(); creates != 1 || updates != 1 {
			t.Errorf("creates=%d updates=%d, want 1 and 1", creates, updates)
		}

		records, err := store.List(ctx, "folder-1")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("List() returned %d records, want 1", len(records))
		}
		if records[0].ModifiedTime != second.Unix() || records[0].Size != 12 {
			t.Errorf("List() = %+v, want mtime %d size 12", records[0], second.Unix())
		}
	})

	t.Run("QuotedName", func(t *testing.T) {
		server, store, fsys := newDriveServer(t)
		writeMemFile(t, fsys, "/data/it's.db", []byte("quoted"), time.Unix(1_600_000_000, 0))

		for i := 0; i < 2; i++ {
			if _, err := store.Upload(ctx, "/data/it's.db", "folder-1"); err != nil {
				t.Fatalf("Upload() #%d error = %v", i+1, err)
			}
		}
		if got := server.named("folder-1", "it's.db"); len(got) != 1 {
			t.Errorf("%d files named it's.db, want 1", len(got))
		}
	})

	t.Run("MissingLocal", func(t *testing.T) {
		server, store, _ := newDriveServer(t)
		if _, err := store.Upload(ctx, "/data/absent.db", "folder-1"); err == nil {
			t.Fatal("Upload() should fail for a missing local file")
		}
		if creates, _ := server.calls(); creates != 0 {
			t.Error("nothing should reach the server")
		}
	})
}

// TestDriveList tests folder listing filters
func TestDriveList(t *testing.T) {
	server, store, _ := newDriveServer(t)
	server.add(drive.File{Id: "f", Name: "folder", MimeType: driveFolderMime, Parents: []string{"root"}}, nil)
	server.add(drive.File{Id: "a", Name: "a.db", Parents: []string{"f"}, ModifiedTime: "2023-11-14T22:13:20.000Z"}, []byte("aaa"))
	server.add(drive.File{Id: "b", Name: "b.db", Parents: []string{"f"}, ModifiedTime: "2024-01-01T00:00:00.000Z"}, []byte("bbbb"))
	server.add(drive.File{Id: "c", Name: "c.db", Parents: []string{"f"}, ModifiedTime: "2025-01-01T00:00:00Z", Trashed: true}, []byte("c"))
	server.add(drive.File{Id: "s", Name: "sub", MimeType: driveFolderMime, Parents: []string{"f"}, ModifiedTime: "2026-01-01T00:00:00Z"}, nil)
	server.add(drive.File{Id: "o", Name: "other.db", Parents: []string{"elsewhere"}, ModifiedTime: "2026-01-01T00:00:00Z"}, []byte("o"))

	records, err := store.List(context.Background(), "f")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("List() returned %d records, want 2: %+v", len(records), records)
	}
	if records[0].ID != "b" || records[0].ModifiedTime != 1_704_067_200 || records[0].Size != 4 {
		t.Errorf("records[0] = %+v", records[0])
	}
	if records[1].ID != "a" || records[1].ModifiedTime != 1_700_000_000 {
		t.Errorf("records[1] = %+v", records[1])
	}
}

// TestDriveDownload tests media download into a local path
func TestDriveDownload(t *testing.T) {
	ctx := context.Background()
	server, store, fsys := newDriveServer(t)
	server.add(drive.File{Id: "x", Name: "takeout.db", Parents: []string{"f"}}, []byte("drive bytes"))
	fsys.MkdirAll("/data", 0755)

	if err := store.Download(ctx, "x", "/data/takeout.db.download.tmp"); err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	got, _ := afero.ReadFile(fsys, "/data/takeout.db.download.tmp")
	if !bytes.Equal(got, []byte("drive bytes")) {
		t.Errorf("downloaded %q", got)
	}

	if err := store.Download(ctx, "missing", "/data/missing.tmp"); err == nil {
		t.Error("Download() should fail for a missing file")
	}
}

// TestDriveProbe tests folder reachability checks
func TestDriveProbe(t *testing.T) {
	server, store, _ := newDriveServer(t)
	server.add(drive.File{Id: "folder", MimeType: driveFolderMime}, nil)
	server.add(drive.File{Id: "binned", MimeType: driveFolderMime, Trashed: true}, nil)
	server.add(drive.File{Id: "file", MimeType: "application/octet-stream"}, []byte("x"))

	tests := []struct {
		location string
		wantErr  bool
	}{
		{"folder", false},
		{"binned", true},
		{"file", true},
		{"missing", true},
	}

	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			err := store.Probe(context.Background(), tt.location)
			if (err != nil) != tt.wantErr {
				t.Errorf("Probe(%q) error = %v, wantErr %v", tt.location, err, tt.wantErr)
			}
		})
	}
}
