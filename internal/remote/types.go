// Package remote provides the client and data types for the REST API of the
// source review instance.
//
// Only the fields the importer reads are modelled. Every JSON response the
// service returns starts with a fixed anti-XSSI prefix which Response strips
// before decoding.
package remote

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// API configuration constants.
const (
	// AuthPrefix is prepended to every endpoint so requests are authenticated.
	AuthPrefix = "/a"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxPages bounds change query pagination.
	// This prevents infinite loops from a server that always reports more.
	MaxPages = 1000

	// TimestampLayout is the format of every timestamp in the REST API. Values are UTC.
	TimestampLayout = "2006-01-02 15:04:05.000000000"
)

// JSONMagic is the anti-hijacking prefix in front of every JSON response body.
var JSONMagic = []byte(")]}'\n")

// Client provides methods to interact with the remote REST API.
type Client struct {
	BaseURL    string       // e.g. https://review.example.com, no trailing slash
	User       string       // HTTP basic auth user
	Password   string       // HTTP basic auth password
	PageSize   int          // Changes per query page; 0 leaves it to the server
	HTTPClient *http.Client // Optional custom HTTP client
}

// Timestamp is a REST API timestamp.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON parses the service's UTC layout. Null and "" decode to the
// zero time.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	s := strings.Trim(string(data), `"`)
	if s == "" {
		return nil
	}
	parsed, err := time.ParseInLocation(TimestampLayout, s, time.UTC)
	if err != nil {
		// Older servers omit the fractional part.
		parsed, err = time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
	}
	t.Time = parsed
	return nil
}

// MarshalJSON writes the service's layout.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.UTC().Format(TimestampLayout) + `"`), nil
}

// ProjectInfo describes a remote project.
type ProjectInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Parent      string `json:"parent,omitempty"`
	Description string `json:"description,omitempty"`
	State       string `json:"state,omitempty"`
}

// AccountInfo identifies a remote account. Which fields are set depends on
// the query options and the server's privacy settings.
type AccountInfo struct {
	AccountID int    `json:"_account_id"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	Username  string `json:"username,omitempty"`
}

// GroupOptions holds group flags.
type GroupOptions struct {
	VisibleToAll bool `json:"visible_to_all,omitempty"`
}

// GroupInfo is a remote group as returned by /groups/{id}/detail.
// ID is the group UUID.
type GroupInfo struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	URL         string        `json:"url,omitempty"`
	Options     GroupOptions  `json:"options"`
	Description string        `json:"description,omitempty"`
	GroupID     int           `json:"group_id,omitempty"`
	Owner       string        `json:"owner,omitempty"`
	OwnerID     string        `json:"owner_id,omitempty"`
	CreatedOn   Timestamp     `json:"created_on"`
	Members     []AccountInfo `json:"members,omitempty"`
	Includes    []GroupInfo   `json:"includes,omitempty"`
}

// ChangeInfo is one change from the change query, with the detail the
// query options request.
type ChangeInfo struct {
	ID              string                  `json:"id"`
	Project         string                  `json:"project"`
	Branch          string                  `json:"branch"`
	Topic           string                  `json:"topic,omitempty"`
	Hashtags        []string                `json:"hashtags,omitempty"`
	ChangeID        string                  `json:"change_id"`
	Subject         string                  `json:"subject"`
	Status          string                  `json:"status"`
	Created         Timestamp               `json:"created"`
	Updated         Timestamp               `json:"updated"`
	Number          int                     `json:"_number"`
	Owner           AccountInfo             `json:"owner"`
	Labels          map[string]LabelInfo    `json:"labels,omitempty"`
	Messages        []ChangeMessageInfo     `json:"messages,omitempty"`
	CurrentRevision string                  `json:"current_revision,omitempty"`
	Revisions       map[string]RevisionInfo `json:"revisions,omitempty"`
	MoreChanges     bool                    `json:"_more_changes,omitempty"`
}

// RevisionInfo is one patch set of a change, keyed by commit SHA-1 in
// ChangeInfo.Revisions.
type RevisionInfo struct {
	Draft    bool        `json:"draft,omitempty"`
	Number   int         `json:"_number"`
	Created  Timestamp   `json:"created"`
	Uploader AccountInfo `json:"uploader"`
	Ref      string      `json:"ref"`
	Commit   *CommitInfo `json:"commit,omitempty"`
}

// CommitInfo describes a commit.
type CommitInfo struct {
	Commit  string       `json:"commit,omitempty"`
	Parents []CommitInfo `json:"parents,omitempty"`
	Subject string       `json:"subject,omitempty"`
	Message string       `json:"message,omitempty"`
}

// LabelInfo carries every vote on a label when DETAILED_LABELS is requested.
type LabelInfo struct {
	All []ApprovalInfo `json:"all,omitempty"`
}

// ApprovalInfo is one account's vote. Value is nil when the account may
// vote but has not.
type ApprovalInfo struct {
	AccountInfo
	Value *int      `json:"value,omitempty"`
	Date  Timestamp `json:"date"`
}

// ChangeMessageInfo is one entry of the review history. Author is nil for
// messages the server posted itself.
type ChangeMessageInfo struct {
	ID             string       `json:"id"`
	Author         *AccountInfo `json:"author,omitempty"`
	Date           Timestamp    `json:"date"`
	Message        string       `json:"message"`
	RevisionNumber int          `json:"_revision_number,omitempty"`
}

// CommentRange is the character range an inline comment covers.
type CommentRange struct {
	StartLine      int `json:"start_line"`
	StartCharacter int `json:"start_character"`
	EndLine        int `json:"end_line"`
	EndCharacter   int `json:"end_character"`
}

// CommentInfo is a published inline comment. Path is filled in by
// ListChangeComments from the map key it was listed under.
type CommentInfo struct {
	ID        string        `json:"id"`
	Path      string        `json:"path,omitempty"`
	Side      string        `json:"side,omitempty"` // "PARENT" or absent
	PatchSet  int           `json:"patch_set"`
	Line      int           `json:"line,omitempty"`
	Range     *CommentRange `json:"range,omitempty"`
	InReplyTo string        `json:"in_reply_to,omitempty"`
	Message   string        `json:"message"`
	Updated   Timestamp     `json:"updated"`
	Author    AccountInfo   `json:"author"`
}
