// Package replay recreates the review history of a project's changes in the
// local store.
//
// Changes are replayed one at a time in the order the remote returns them.
// For each change the patch sets are written before the change row, so a
// reader that can see a change can always see its revisions. Every write
// commits on its own and nothing is retried: the first failure ends the
// replay and the changes completed before it stay in place. A later run
// skips those, completes a change that was interrupted halfway and continues
// with the rest.
package replay

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/steveyegge/gimport/internal/debug"
	"github.com/steveyegge/gimport/internal/errdefs"
	"github.com/steveyegge/gimport/internal/remote"
	"github.com/steveyegge/gimport/internal/storage"
	"github.com/steveyegge/gimport/internal/telemetry"
	"github.com/steveyegge/gimport/internal/types"
)

// Remote is the part of the remote API replay reads. *remote.Client
// satisfies it.
type Remote interface {
	QueryChanges(ctx context.Context, project string) ([]remote.ChangeInfo, error)
	ListChangeComments(ctx context.Context, changeID string) ([]remote.CommentInfo, error)
}

// Repository answers commit lookups against the mirrored repository.
// *gitrepo.Repository satisfies it.
type Repository interface {
	CommitExists(ctx context.Context, sha string) (bool, error)
	Parents(ctx context.Context, sha string) ([]string, error)
}

// AccountResolver maps remote accounts to local ones.
// *accounts.Resolver satisfies it.
type AccountResolver interface {
	ResolveAccount(ctx context.Context, ref remote.AccountInfo) (int, error)
	ResolveAll(ctx context.Context, refs []remote.AccountInfo) ([]int, error)
}

// Indexer refreshes the search document of a change.
type Indexer interface {
	Index(ctx context.Context, changeID int) error
}

// Store is what a replay reads and writes.
type Store interface {
	storage.ChangeStore
	storage.IndexStore
}

// Replayer replays the changes of one project.
type Replayer struct {
	store    Store
	remote   Remote
	repo     Repository
	accounts AccountResolver
	indexer  Indexer

	// From is the source instance's base URL, used for origin links.
	From string
}

// New creates a replayer.
func New(store Store, r Remote, repo Repository, accounts AccountResolver, indexer Indexer, from string) *Replayer {
	return &Replayer{store: store, remote: r, repo: repo, accounts: accounts, indexer: indexer, From: from}
}

// Stats summarizes one replay.
type Stats struct {
	Queried   int `json:"queried"`
	Replayed  int `json:"replayed"`
	Skipped   int `json:"skipped"`
	PatchSets int `json:"patch_sets"`
	Comments  int `json:"comments"`
	Messages  int `json:"messages"`
	Approvals int `json:"approvals"`
	Hashtags  int `json:"hashtags"`
}

// Replay replays every change of project. The returned Stats are valid even
// when an error is returned and count what was written before the failure.
func (r *Replayer) Replay(ctx context.Context, project string) (*Stats, error) {
	stats := &Stats{}
	changes, err := r.remote.QueryChanges(ctx, project)
	if err != nil {
		return stats, err
	}
	stats.Queried = len(changes)
	debug.Logf("replaying %d changes of %s\n", len(changes), project)

	for i := range changes {
		ci := &changes[i]
		skipped, err := r.replayChange(ctx, project, ci, stats)
		if err != nil {
			return stats, fmt.Errorf("failed to replay change %d of %s: %w", ci.Number, project, err)
		}
		outcome := "replayed"
		if skipped {
			outcome = "skipped"
			stats.Skipped++
		} else {
			stats.Replayed++
		}
		telemetry.RecordChange(ctx, project, outcome)
	}
	return stats, nil
}

func (r *Replayer) replayChange(ctx context.Context, project string, ci *remote.ChangeInfo, stats *Stats) (skipped bool, err error) {
	ctx, end := telemetry.StartStage(ctx, "replay-change",
		attribute.String("gimport.project", project),
		attribute.Int("gimport.change", ci.Number))
	defer func() { end(err) }()

	changeProject := ci.Project
	if changeProject == "" {
		changeProject = project
	}
	branch := types.FullBranchName(ci.Branch)

	// The origin link is the last store write of a replay, so a change row
	// without one was left behind by an interrupted run and is completed here.
	change, err := r.store.FindChange(ctx, changeProject, branch, ci.ChangeID)
	switch {
	case err == nil:
		_, lerr := r.store.GetOriginLink(ctx, change.ID)
		if lerr == nil {
			debug.Logf("change %s on %s already replayed, skipping\n", ci.ChangeID, branch)
			return true, r.ensureIndexed(ctx, change.ID)
		}
		if !errors.Is(lerr, storage.ErrNotFound) {
			return false, lerr
		}
		debug.Logf("change %s on %s was partially replayed, completing\n", ci.ChangeID, branch)
	case errors.Is(err, storage.ErrNotFound):
		change, err = r.createChange(ctx, changeProject, branch, ci)
		if err != nil {
			return false, err
		}
		n, err := r.replayRevisions(ctx, change, ci)
		if err != nil {
			return false, err
		}
		stats.PatchSets += n
		if err := r.store.InsertChange(ctx, change); err != nil {
			return false, fmt.Errorf("failed to insert change: %w", err)
		}
	default:
		return false, err
	}

	n, err := r.replayInlineComments(ctx, change, ci)
	if err != nil {
		return false, err
	}
	stats.Comments += n

	if n, err = r.replayMessages(ctx, change, ci); err != nil {
		return false, err
	}
	stats.Messages += n

	if n, err = r.addApprovals(ctx, change, ci); err != nil {
		return false, err
	}
	stats.Approvals += n

	if n, err = r.addHashtags(ctx, change, ci); err != nil {
		return false, err
	}
	stats.Hashtags += n

	if err := r.insertOriginLink(ctx, change, ci); err != nil {
		return false, err
	}

	if err := r.indexer.Index(ctx, change.ID); err != nil {
		return false, err
	}
	return false, nil
}

// ensureIndexed indexes a completed change whose index update was lost.
func (r *Replayer) ensureIndexed(ctx context.Context, changeID int) error {
	_, err := r.store.GetChangeDocument(ctx, changeID)
	if errors.Is(err, storage.ErrNotFound) {
		return r.indexer.Index(ctx, changeID)
	}
	return err
}

// createChange allocates the ID and builds the row. Nothing is written
// except the ID sequence.
func (r *Replayer) createChange(ctx context.Context, project, branch string, ci *remote.ChangeInfo) (*types.Change, error) {
	status, err := mapStatus(ci.Status)
	if err != nil {
		return nil, err
	}
	id, err := r.store.NextChangeID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate change id: %w", err)
	}
	owner, err := r.accounts.ResolveAccount(ctx, ci.Owner)
	if err != nil {
		return nil, err
	}
	updated := ci.Updated.Time
	if updated.IsZero() {
		updated = ci.Created.Time
	}
	return &types.Change{
		ID:        id,
		Key:       ci.ChangeID,
		Project:   project,
		Branch:    branch,
		OwnerID:   owner,
		Subject:   ci.Subject,
		Status:    status,
		Topic:     ci.Topic,
		CreatedAt: ci.Created.Time,
		UpdatedAt: updated,
	}, nil
}

func mapStatus(s string) (types.ChangeStatus, error) {
	switch strings.ToUpper(s) {
	case "NEW":
		return types.StatusNew, nil
	case "DRAFT":
		return types.StatusDraft, nil
	case "MERGED":
		return types.StatusMerged, nil
	case "ABANDONED":
		return types.StatusAbandoned, nil
	}
	return "", errdefs.BadRequest("unknown change status %q", s)
}

// replayRevisions writes the patch sets and sets the change's current patch
// set and subject from the newest revision. Every revision's commit must
// already be in the repository.
func (r *Replayer) replayRevisions(ctx context.Context, change *types.Change, ci *remote.ChangeInfo) (int, error) {
	revs := ci.SortedRevisions()
	if len(revs) == 0 {
		return 0, errdefs.BadRequest("change %d has no revisions", ci.Number)
	}

	uploaders := make([]remote.AccountInfo, len(revs))
	for i, rev := range revs {
		uploaders[i] = rev.Uploader
		if uploaders[i].AccountID == 0 && uploaders[i].Username == "" && uploaders[i].Email == "" {
			uploaders[i] = ci.Owner
		}
	}
	uploaderIDs, err := r.accounts.ResolveAll(ctx, uploaders)
	if err != nil {
		return 0, err
	}

	patchSets := make([]*types.PatchSet, 0, len(revs))
	for i, rev := range revs {
		ok, err := r.repo.CommitExists(ctx, rev.SHA)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("patch set %d: commit %s is missing from the repository", rev.Number, rev.SHA)
		}
		parents, err := r.parents(ctx, rev)
		if err != nil {
			return 0, err
		}
		created := rev.Created.Time
		if created.IsZero() {
			created = change.CreatedAt
		}
		patchSets = append(patchSets, &types.PatchSet{
			ChangeID:   change.ID,
			Number:     rev.Number,
			Revision:   rev.SHA,
			UploaderID: uploaderIDs[i],
			Ref:        rev.Ref,
			Draft:      rev.Draft,
			Parents:    parents,
			CreatedAt:  created,
		})
	}

	if err := r.store.InsertPatchSets(ctx, patchSets); err != nil {
		return 0, fmt.Errorf("failed to insert patch sets: %w", err)
	}

	current := revs[len(revs)-1]
	if cur, ok := ci.Revisions[ci.CurrentRevision]; ok {
		current = remote.RevisionRef{SHA: ci.CurrentRevision, RevisionInfo: cur}
	}
	change.CurrentPatchSet = current.Number
	if current.Commit != nil && current.Commit.Subject != "" {
		change.Subject = current.Commit.Subject
	}
	return len(patchSets), nil
}

func (r *Replayer) parents(ctx context.Context, rev remote.RevisionRef) ([]string, error) {
	if rev.Commit != nil && len(rev.Commit.Parents) > 0 {
		out := make([]string, 0, len(rev.Commit.Parents))
		for _, p := range rev.Commit.Parents {
			out = append(out, p.Commit)
		}
		return out, nil
	}
	return r.repo.Parents(ctx, rev.SHA)
}

// replayInlineComments copies the published comments. All authors are
// resolved before anything is inserted.
func (r *Replayer) replayInlineComments(ctx context.Context, change *types.Change, ci *remote.ChangeInfo) (int, error) {
	comments, err := r.remote.ListChangeComments(ctx, remoteChangeID(ci))
	if err != nil {
		return 0, err
	}
	if len(comments) == 0 {
		return 0, nil
	}

	have, err := r.store.GetComments(ctx, change.ID)
	if err != nil {
		return 0, err
	}
	if len(have) > 0 {
		seen := make(map[string]bool, len(have))
		for _, c := range have {
			seen[c.UUID] = true
		}
		var fresh []remote.CommentInfo
		for _, c := range comments {
			if c.ID == "" || !seen[c.ID] {
				fresh = append(fresh, c)
			}
		}
		comments = fresh
		if len(comments) == 0 {
			return 0, nil
		}
	}

	authors := make([]remote.AccountInfo, len(comments))
	for i, c := range comments {
		authors[i] = c.Author
	}
	authorIDs, err := r.accounts.ResolveAll(ctx, authors)
	if err != nil {
		return 0, err
	}

	out := make([]*types.Comment, 0, len(comments))
	for i, c := range comments {
		side := types.SideRevision
		if strings.EqualFold(c.Side, "PARENT") {
			side = types.SideParent
		}
		var rng *types.CommentRange
		if c.Range != nil {
			rng = &types.CommentRange{
				StartLine:      c.Range.StartLine,
				StartCharacter: c.Range.StartCharacter,
				EndLine:        c.Range.EndLine,
				EndCharacter:   c.Range.EndCharacter,
			}
		}
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		out = append(out, &types.Comment{
			ChangeID:       change.ID,
			PatchSetNumber: c.PatchSet,
			UUID:           id,
			ParentUUID:     c.InReplyTo,
			Path:           c.Path,
			Side:           side,
			Line:           c.Line,
			Range:          rng,
			Message:        c.Message,
			AuthorID:       authorIDs[i],
			WrittenAt:      c.Updated.Time,
		})
	}
	if err := r.store.InsertComments(ctx, out); err != nil {
		return 0, fmt.Errorf("failed to insert comments: %w", err)
	}
	return len(out), nil
}

// replayMessages copies the review history. Messages the server posted
// itself have no author and keep a nil AuthorID.
func (r *Replayer) replayMessages(ctx context.Context, change *types.Change, ci *remote.ChangeInfo) (int, error) {
	messages := ci.Messages
	if len(messages) == 0 {
		return 0, nil
	}
	have, err := r.store.GetChangeMessages(ctx, change.ID)
	if err != nil {
		return 0, err
	}
	if len(have) > 0 {
		seen := make(map[string]bool, len(have))
		for _, m := range have {
			seen[m.UUID] = true
		}
		var fresh []remote.ChangeMessageInfo
		for _, m := range messages {
			if m.ID == "" || !seen[m.ID] {
				fresh = append(fresh, m)
			}
		}
		messages = fresh
		if len(messages) == 0 {
			return 0, nil
		}
	}

	var authors []remote.AccountInfo
	for _, m := range messages {
		if m.Author != nil {
			authors = append(authors, *m.Author)
		}
	}
	authorIDs, err := r.accounts.ResolveAll(ctx, authors)
	if err != nil {
		return 0, err
	}

	out := make([]*types.ChangeMessage, 0, len(messages))
	next := 0
	for _, m := range messages {
		msg := &types.ChangeMessage{
			ChangeID:       change.ID,
			UUID:           m.ID,
			PatchSetNumber: m.RevisionNumber,
			Message:        m.Message,
			WrittenAt:      m.Date.Time,
		}
		if msg.UUID == "" {
			msg.UUID = uuid.NewString()
		}
		if m.Author != nil {
			id := authorIDs[next]
			next++
			msg.AuthorID = &id
		}
		out = append(out, msg)
	}
	if err := r.store.InsertChangeMessages(ctx, out); err != nil {
		return 0, fmt.Errorf("failed to insert messages: %w", err)
	}
	return len(out), nil
}

// addApprovals records every non-zero vote as given on the current patch
// set.
func (r *Replayer) addApprovals(ctx context.Context, change *types.Change, ci *remote.ChangeInfo) (int, error) {
	labels := make([]string, 0, len(ci.Labels))
	for l := range ci.Labels {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	type vote struct {
		label string
		value int
		date  time.Time
	}
	var votes []vote
	var voters []remote.AccountInfo
	for _, l := range labels {
		for _, a := range ci.Labels[l].All {
			if a.Value == nil || *a.Value == 0 {
				continue
			}
			date := a.Date.Time
			if date.IsZero() {
				date = change.UpdatedAt
			}
			votes = append(votes, vote{label: l, value: *a.Value, date: date})
			voters = append(voters, a.AccountInfo)
		}
	}
	if len(votes) == 0 {
		return 0, nil
	}
	voterIDs, err := r.accounts.ResolveAll(ctx, voters)
	if err != nil {
		return 0, err
	}

	have, err := r.store.GetApprovals(ctx, change.ID)
	if err != nil {
		return 0, err
	}
	type approvalKey struct {
		patchSet, account int
		label             string
	}
	seen := make(map[approvalKey]bool, len(have))
	for _, a := range have {
		seen[approvalKey{a.PatchSetNumber, a.AccountID, a.Label}] = true
	}

	out := make([]*types.Approval, 0, len(votes))
	for i, v := range votes {
		k := approvalKey{change.CurrentPatchSet, voterIDs[i], v.label}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, &types.Approval{
			ChangeID:       change.ID,
			PatchSetNumber: change.CurrentPatchSet,
			AccountID:      voterIDs[i],
			Label:          v.label,
			Value:          v.value,
			GrantedAt:      v.date,
		})
	}
	if len(out) == 0 {
		return 0, nil
	}
	if err := r.store.InsertApprovals(ctx, out); err != nil {
		return 0, fmt.Errorf("failed to insert approvals: %w", err)
	}
	return len(out), nil
}

func (r *Replayer) addHashtags(ctx context.Context, change *types.Change, ci *remote.ChangeInfo) (int, error) {
	seen := make(map[string]bool, len(ci.Hashtags))
	var tags []string
	for _, h := range ci.Hashtags {
		h = strings.TrimSpace(strings.TrimPrefix(h, "#"))
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		tags = append(tags, h)
	}
	if len(tags) == 0 {
		return 0, nil
	}
	if err := r.store.AddHashtags(ctx, change.ID, tags); err != nil {
		return 0, fmt.Errorf("failed to add hashtags: %w", err)
	}
	return len(tags), nil
}

// insertOriginLink points the change back at its source. It runs after
// every other write of the change.
func (r *Replayer) insertOriginLink(ctx context.Context, change *types.Change, ci *remote.ChangeInfo) error {
	base := strings.TrimRight(r.From, "/")
	host := base
	if u, err := url.Parse(base); err == nil && u.Host != "" {
		host = u.Host
	}
	link := &types.OriginLink{
		ChangeID:       change.ID,
		SourceHost:     host,
		SourceProject:  ci.Project,
		SourceNumber:   ci.Number,
		SourceChangeID: ci.ChangeID,
		URL:            base + "/#/c/" + strconv.Itoa(ci.Number) + "/",
		CreatedAt:      time.Now().UTC(),
	}
	if err := r.store.InsertOriginLink(ctx, link); err != nil {
		return fmt.Errorf("failed to insert origin link: %w", err)
	}
	return nil
}

// remoteChangeID returns the identifier the remote API addresses the change
// by: the triplet when the query returned one, else the legacy number.
func remoteChangeID(ci *remote.ChangeInfo) string {
	if ci.ID != "" {
		return ci.ID
	}
	return strconv.Itoa(ci.Number)
}
