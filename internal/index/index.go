// Package index maintains the per-change search documents.
package index

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/steveyegge/gimport/internal/storage"
	"github.com/steveyegge/gimport/internal/types"
)

// Store is what the indexer reads from and writes to.
type Store interface {
	storage.ChangeStore
	storage.IndexStore
}

// Indexer rebuilds change documents from the stored change graph.
type Indexer struct {
	store Store
	now   func() time.Time
}

// New creates an indexer over store.
func New(store Store) *Indexer {
	return &Indexer{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Index rebuilds and stores the document of one change.
func (ix *Indexer) Index(ctx context.Context, changeID int) error {
	doc, err := ix.Build(ctx, changeID)
	if err != nil {
		return err
	}
	if err := ix.store.PutChangeDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to index change %d: %w", changeID, err)
	}
	return nil
}

// Build assembles the document of a change without storing it.
func (ix *Indexer) Build(ctx context.Context, changeID int) (*types.ChangeDocument, error) {
	c, err := ix.store.GetChange(ctx, changeID)
	if err != nil {
		return nil, fmt.Errorf("failed to index change %d: %w", changeID, err)
	}
	patchSets, err := ix.store.GetPatchSets(ctx, changeID)
	if err != nil {
		return nil, fmt.Errorf("failed to index change %d: %w", changeID, err)
	}
	comments, err := ix.store.GetComments(ctx, changeID)
	if err != nil {
		return nil, fmt.Errorf("failed to index change %d: %w", changeID, err)
	}
	messages, err := ix.store.GetChangeMessages(ctx, changeID)
	if err != nil {
		return nil, fmt.Errorf("failed to index change %d: %w", changeID, err)
	}
	approvals, err := ix.store.GetApprovals(ctx, changeID)
	if err != nil {
		return nil, fmt.Errorf("failed to index change %d: %w", changeID, err)
	}
	hashtags, err := ix.store.GetHashtags(ctx, changeID)
	if err != nil {
		return nil, fmt.Errorf("failed to index change %d: %w", changeID, err)
	}

	doc := &types.ChangeDocument{
		ChangeID:  c.ID,
		Key:       c.Key,
		Project:   c.Project,
		Branch:    c.Branch,
		Status:    c.Status,
		Subject:   c.Subject,
		Topic:     c.Topic,
		OwnerID:   c.OwnerID,
		Hashtags:  hashtags,
		Comments:  len(comments),
		Messages:  len(messages),
		UpdatedAt: c.UpdatedAt,
		IndexedAt: ix.now(),
	}
	for _, ps := range patchSets {
		doc.Revisions = append(doc.Revisions, ps.Revision)
	}

	reviewers := make(map[int]bool)
	labels := make(map[string]bool)
	for _, a := range approvals {
		if a.AccountID != c.OwnerID {
			reviewers[a.AccountID] = true
		}
		labels[a.Label+"="+strconv.Itoa(a.Value)] = true
	}
	for id := range reviewers {
		doc.Reviewers = append(doc.Reviewers, id)
	}
	sort.Ints(doc.Reviewers)
	for l := range labels {
		doc.Labels = append(doc.Labels, l)
	}
	sort.Strings(doc.Labels)

	// The origin link is written just before indexing; a change replayed
	// without one is still indexable.
	if link, err := ix.store.GetOriginLink(ctx, changeID); err == nil {
		doc.OriginHost = link.SourceHost
	}
	return doc, nil
}
