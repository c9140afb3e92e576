package syncer

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/example/pos-sync/internal/localstore"
	"github.com/example/pos-sync/internal/remote"
)

// hydrated collections, in dependency order.
var hydrateCollections = []string{
	localstore.CollectionBusinesses,
	localstore.CollectionBranches,
	localstore.CollectionUsers,
	localstore.CollectionProducts,
}

// Hydrate refreshes the local cache from the remote store. Each collection
// is cleared and re-filled so records deleted remotely do not linger. Run
// it at startup and after a reconnect drain, never while offline.
func Hydrate(ctx context.Context, remoteStore remote.Store, local localstore.Store) error {
	for _, collection := range hydrateCollections {
		docs, err := remoteStore.Query(ctx, collection)
		if err != nil {
			return err
		}
		local.Clear(collection)
		for _, doc := range docs {
			rec, err := recordFromDoc(doc)
			if err != nil {
				log.Printf("[Sync] hydrate %s: %v", collection, err)
				continue
			}
			local.Put(collection, rec)
		}
	}
	return nil
}

// recordFromDoc builds a cache record straight from a remote document,
// picking up the denormalized index fields.
func recordFromDoc(doc []byte) (localstore.Record, error) {
	var probe struct {
		ID         string `json:"id"`
		Status     string `json:"status"`
		BranchID   string `json:"branch_id"`
		BusinessID string `json:"business_id"`
	}
	if err := json.Unmarshal(doc, &probe); err != nil {
		return localstore.Record{}, err
	}
	return localstore.Record{
		ID:         probe.ID,
		Data:       doc,
		Status:     probe.Status,
		BranchID:   probe.BranchID,
		BusinessID: probe.BusinessID,
		CreatedAt:  time.Now(),
	}, nil
}
