package types

import (
	"strings"
	"time"
)

// HeadsPrefix is the ref namespace branches live under.
const HeadsPrefix = "refs/heads/"

// ChangeStatus is the lifecycle state of a local change.
type ChangeStatus string

const (
	StatusNew       ChangeStatus = "new"
	StatusDraft     ChangeStatus = "draft"
	StatusMerged    ChangeStatus = "merged"
	StatusAbandoned ChangeStatus = "abandoned"
)

// IsValid reports whether the status is one of the known states.
func (s ChangeStatus) IsValid() bool {
	switch s {
	case StatusNew, StatusDraft, StatusMerged, StatusAbandoned:
		return true
	}
	return false
}

// IsOpen reports whether the change still accepts new patch sets.
func (s ChangeStatus) IsOpen() bool {
	return s == StatusNew || s == StatusDraft
}

// Change is a review request replayed into the local store.
type Change struct {
	ID              int          `json:"id"`
	Key             string       `json:"key"` // Change-Id, e.g. "I8473b95934b5732ac55d26311a706c9c2bde9940"
	Project         string       `json:"project"`
	Branch          string       `json:"branch"` // always fully qualified (refs/heads/...)
	OwnerID         int          `json:"owner_id"`
	Subject         string       `json:"subject"`
	Status          ChangeStatus `json:"status"`
	Topic           string       `json:"topic,omitempty"`
	CurrentPatchSet int          `json:"current_patch_set"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// FullBranchName qualifies a short branch name with the heads namespace.
func FullBranchName(branch string) string {
	if strings.HasPrefix(branch, HeadsPrefix) {
		return branch
	}
	return HeadsPrefix + branch
}

// ShortBranchName strips the heads namespace, if present.
func ShortBranchName(branch string) string {
	return strings.TrimPrefix(branch, HeadsPrefix)
}

// PatchSet is one revision of a change. Revision is the commit SHA-1 that
// must already exist in the project's repository.
type PatchSet struct {
	ChangeID   int       `json:"change_id"`
	Number     int       `json:"number"`
	Revision   string    `json:"revision"`
	UploaderID int       `json:"uploader_id"`
	Ref        string    `json:"ref"` // ref the revision was fetched under
	Draft      bool      `json:"draft,omitempty"`
	Parents    []string  `json:"parents,omitempty"` // parent commits, in order
	CreatedAt  time.Time `json:"created_at"`
}

// Side values for inline comments.
const (
	SideParent   = 0
	SideRevision = 1
)

// CommentRange is the character range an inline comment covers.
type CommentRange struct {
	StartLine      int `json:"start_line"`
	StartCharacter int `json:"start_character"`
	EndLine        int `json:"end_line"`
	EndCharacter   int `json:"end_character"`
}

// Comment is a published inline comment on a patch set.
type Comment struct {
	ChangeID       int           `json:"change_id"`
	PatchSetNumber int           `json:"patch_set"`
	UUID           string        `json:"uuid"`
	ParentUUID     string        `json:"parent_uuid,omitempty"`
	Path           string        `json:"path"`
	Side           int           `json:"side"`
	Line           int           `json:"line,omitempty"`
	Range          *CommentRange `json:"range,omitempty"`
	Message        string        `json:"message"`
	AuthorID       int           `json:"author_id"`
	WrittenAt      time.Time     `json:"written_at"`
}

// ChangeMessage is an entry in a change's review history. AuthorID is nil
// for messages posted by the server itself.
type ChangeMessage struct {
	ChangeID       int       `json:"change_id"`
	UUID           string    `json:"uuid"`
	AuthorID       *int      `json:"author_id,omitempty"`
	PatchSetNumber int       `json:"patch_set,omitempty"`
	Message        string    `json:"message"`
	WrittenAt      time.Time `json:"written_at"`
}

// Approval is a label vote on a patch set.
type Approval struct {
	ChangeID       int       `json:"change_id"`
	PatchSetNumber int       `json:"patch_set"`
	AccountID      int       `json:"account_id"`
	Label          string    `json:"label"`
	Value          int       `json:"value"`
	GrantedAt      time.Time `json:"granted_at"`
}

// OriginLink points a replayed change back to the change it was copied from.
type OriginLink struct {
	ChangeID       int       `json:"change_id"`
	SourceHost     string    `json:"source_host"`
	SourceProject  string    `json:"source_project"`
	SourceNumber   int       `json:"source_number"`
	SourceChangeID string    `json:"source_change_id"`
	URL            string    `json:"url"`
	CreatedAt      time.Time `json:"created_at"`
}

// ChangeDocument is the denormalized entry the search index keeps per change.
type ChangeDocument struct {
	ChangeID   int          `json:"change_id"`
	Key        string       `json:"key"`
	Project    string       `json:"project"`
	Branch     string       `json:"branch"`
	Status     ChangeStatus `json:"status"`
	Subject    string       `json:"subject"`
	Topic      string       `json:"topic,omitempty"`
	OwnerID    int          `json:"owner_id"`
	Hashtags   []string     `json:"hashtags,omitempty"`
	Reviewers  []int        `json:"reviewers,omitempty"`
	Labels     []string     `json:"labels,omitempty"` // "Label=Value" terms
	Revisions  []string     `json:"revisions,omitempty"`
	Comments   int          `json:"comments"`
	Messages   int          `json:"messages"`
	UpdatedAt  time.Time    `json:"updated_at"`
	IndexedAt  time.Time    `json:"indexed_at"`
	OriginHost string       `json:"origin_host,omitempty"`
}
