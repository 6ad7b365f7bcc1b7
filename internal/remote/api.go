package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
)

// ChangeQueryOptions are requested for every change so replay has revisions,
// commits, messages, account details and every label vote in one round trip.
var ChangeQueryOptions = []string{
	"ALL_REVISIONS",
	"ALL_COMMITS",
	"MESSAGES",
	"DETAILED_ACCOUNTS",
	"DETAILED_LABELS",
}

// GetProject fetches one project descriptor.
func (c *Client) GetProject(ctx context.Context, name string) (*ProjectInfo, error) {
	resp, err := c.Get(ctx, "/projects/"+escapeID(name))
	if err != nil {
		return nil, fmt.Errorf("failed to get project %s: %w", name, err)
	}
	var p ProjectInfo
	if err := resp.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to get project %s: %w", name, err)
	}
	return &p, nil
}

// GetGroup fetches a group with its members and included groups. nameOrUUID
// may be either the group name or its UUID.
func (c *Client) GetGroup(ctx context.Context, nameOrUUID string) (*GroupInfo, error) {
	resp, err := c.Get(ctx, "/groups/"+escapeID(nameOrUUID)+"/detail")
	if err != nil {
		return nil, fmt.Errorf("failed to get group %s: %w", nameOrUUID, err)
	}
	var g GroupInfo
	if err := resp.Decode(&g); err != nil {
		return nil, fmt.Errorf("failed to get group %s: %w", nameOrUUID, err)
	}
	return &g, nil
}

// GetAccount fetches the detail of one account, including its username.
func (c *Client) GetAccount(ctx context.Context, accountID int) (*AccountInfo, error) {
	resp, err := c.Get(ctx, "/accounts/"+strconv.Itoa(accountID)+"/detail")
	if err != nil {
		return nil, fmt.Errorf("failed to get account %d: %w", accountID, err)
	}
	var a AccountInfo
	if err := resp.Decode(&a); err != nil {
		return nil, fmt.Errorf("failed to get account %d: %w", accountID, err)
	}
	return &a, nil
}

// QueryChanges retrieves every change of a project, following _more_changes
// across pages. Changes are returned in server order.
func (c *Client) QueryChanges(ctx context.Context, project string) ([]ChangeInfo, error) {
	var all []ChangeInfo
	for page := 0; page < MaxPages; page++ {
		params := url.Values{}
		params.Set("q", "project:"+project)
		for _, o := range ChangeQueryOptions {
			params.Add("o", o)
		}
		if c.PageSize > 0 {
			params.Set("n", strconv.Itoa(c.PageSize))
		}
		if len(all) > 0 {
			params.Set("S", strconv.Itoa(len(all)))
		}

		resp, err := c.do(ctx, http.MethodGet, "/changes/", c.buildURL("/changes/", params), nil, "")
		if err != nil {
			return nil, fmt.Errorf("failed to query changes of %s: %w", project, err)
		}
		var changes []ChangeInfo
		if err := resp.Decode(&changes); err != nil {
			return nil, fmt.Errorf("failed to query changes of %s: %w", project, err)
		}
		all = append(all, changes...)

		if len(changes) == 0 || !changes[len(changes)-1].MoreChanges {
			return all, nil
		}
	}
	return nil, fmt.Errorf("failed to query changes of %s: more than %d pages", project, MaxPages)
}

// ListChangeComments returns every published inline comment of a change
// across all patch sets, ordered by file path and then by update time.
func (c *Client) ListChangeComments(ctx context.Context, changeID string) ([]CommentInfo, error) {
	resp, err := c.Get(ctx, "/changes/"+escapeID(changeID)+"/comments")
	if err != nil {
		return nil, fmt.Errorf("failed to list comments of %s: %w", changeID, err)
	}
	var byPath map[string][]CommentInfo
	if err := resp.Decode(&byPath); err != nil {
		return nil, fmt.Errorf("failed to list comments of %s: %w", changeID, err)
	}

	paths := make([]string, 0, len(byPath))
	for p := range byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var out []CommentInfo
	for _, p := range paths {
		comments := byPath[p]
		sort.SliceStable(comments, func(i, j int) bool {
			return comments[i].Updated.Before(comments[j].Updated.Time)
		})
		for _, ci := range comments {
			ci.Path = p
			out = append(out, ci)
		}
	}
	return out, nil
}

// SortedRevisions returns a change's revisions ordered by patch set number,
// each paired with its commit SHA-1.
func (ci *ChangeInfo) SortedRevisions() []RevisionRef {
	refs := make([]RevisionRef, 0, len(ci.Revisions))
	for sha, rev := range ci.Revisions {
		refs = append(refs, RevisionRef{SHA: sha, RevisionInfo: rev})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Number < refs[j].Number })
	return refs
}

// RevisionRef is a revision together with the commit it points at.
type RevisionRef struct {
	SHA string
	RevisionInfo
}
