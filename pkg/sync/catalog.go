package sync

import (
	"context"

	"github.com/sdejongh/replisync/pkg/compare"
	"github.com/sdejongh/replisync/pkg/models"
	"github.com/sdejongh/replisync/pkg/storage"
)

// DefaultCandidatePattern limits candidates to SQLite database files
const DefaultCandidatePattern = "*.db"

// Catalog lists a remote location and picks the replica to compare against
type Catalog struct {
	store   storage.RemoteStore
	pattern string
}

// NewCatalog creates a catalog over store. An empty pattern accepts every name.
func NewCatalog(store storage.RemoteStore, pattern string) *Catalog {
	return &Catalog{store: store, pattern: pattern}
}

// List fetches the current entries of location. Store failures are transport errors.
func (c *Catalog) List(ctx context.Context, location string) ([]models.RemoteReplica, error) {
	records, err := c.store.List(ctx, location)
	if err != nil {
		return nil, models.NewSyncError(models.KindTransport, "list", location, err)
	}
	return records, nil
}

// Candidate returns the entry to reconcile localName against, or nil when the
// location holds no eligible entry. A nil candidate is a normal outcome.
func (c *Catalog) Candidate(ctx context.Context, location, localName string) (*models.RemoteReplica, error) {
	records, err := c.List(ctx, location)
	if err != nil {
		return nil, err
	}

	candidate, ok := compare.SelectCandidate(records, localName, c.pattern)
	if !ok {
		return nil, nil
	}
	return &candidate, nil
}
