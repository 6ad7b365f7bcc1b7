package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

func TestQueryChangesFollowsMoreChanges(t *testing.T) {
	var starts []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("q") != "project:foo" {
			t.Errorf("q = %q", q.Get("q"))
		}
		if len(q["o"]) != len(ChangeQueryOptions) {
			t.Errorf("options = %v", q["o"])
		}
		starts = append(starts, q.Get("S"))

		start, _ := strconv.Atoi(q.Get("S"))
		var page []ChangeInfo
		switch start {
		case 0:
			page = []ChangeInfo{{Number: 1}, {Number: 2, MoreChanges: true}}
		case 2:
			page = []ChangeInfo{{Number: 3}}
		default:
			t.Errorf("unexpected start %d", start)
		}
		writeJSON(t, w, page)
	}))
	defer server.Close()

	changes, err := NewClient(server.URL, "u", "p").WithPageSize(2).QueryChanges(context.Background(), "foo")
	if err != nil {
		t.Fatalf("QueryChanges: %v", err)
	}
	if len(changes) != 3 || changes[2].Number != 3 {
		t.Fatalf("changes = %+v", changes)
	}
	if len(starts) != 2 || starts[0] != "" || starts[1] != "2" {
		t.Errorf("S params = %q", starts)
	}
}

func TestGetGroupEscapesName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/a/groups/team%2Fcore/detail" {
			t.Errorf("escaped path = %q", r.URL.EscapedPath())
		}
		writeJSON(t, w, GroupInfo{
			ID: "uuid-core", Name: "team/core", OwnerID: "uuid-admins",
			Members:  []AccountInfo{{AccountID: 1, Username: "alice"}},
			Includes: []GroupInfo{{ID: "uuid-sub", Name: "sub"}},
		})
	}))
	defer server.Close()

	g, err := NewClient(server.URL, "u", "p").GetGroup(context.Background(), "team/core")
	if err != nil {
		t.Fatalf("GetGroup: %v", err)
	}
	if g.OwnerID != "uuid-admins" || len(g.Members) != 1 || len(g.Includes) != 1 {
		t.Errorf("group = %+v", g)
	}
}

func TestListChangeCommentsFillsPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/a/changes/foo~master~I1/comments" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = w.Write(JSONMagic)
		_, _ = w.Write([]byte(`{
			"b.go": [{"id": "c3", "patch_set": 1, "message": "x", "updated": "2015-01-01 00:00:03.000000000"}],
			"a.go": [
				{"id": "c2", "patch_set": 2, "in_reply_to": "c1", "message": "y", "updated": "2015-01-01 00:00:02.000000000"},
				{"id": "c1", "patch_set": 1, "side": "PARENT", "message": "z", "updated": "2015-01-01 00:00:01.000000000"}
			]
		}`))
	}))
	defer server.Close()

	comments, err := NewClient(server.URL, "u", "p").ListChangeComments(context.Background(), "foo~master~I1")
	if err != nil {
		t.Fatalf("ListChangeComments: %v", err)
	}
	var ids []string
	for _, c := range comments {
		ids = append(ids, c.Path+":"+c.ID)
	}
	want := []string{"a.go:c1", "a.go:c2", "b.go:c3"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v", ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids = %v, want %v", ids, want)
			break
		}
	}
}

func TestSortedRevisions(t *testing.T) {
	ci := ChangeInfo{Revisions: map[string]RevisionInfo{
		"bbb": {Number: 2},
		"aaa": {Number: 1},
		"ccc": {Number: 3},
	}}
	revs := ci.SortedRevisions()
	if len(revs) != 3 || revs[0].SHA != "aaa" || revs[2].SHA != "ccc" {
		t.Errorf("revisions = %+v", revs)
	}
}

func TestGetAccount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/a/accounts/1000096/detail" {
			t.Errorf("path = %q", r.URL.Path)
		}
		writeJSON(t, w, AccountInfo{AccountID: 1000096, Username: "jdoe", Email: "jdoe@example.com"})
	}))
	defer server.Close()

	a, err := NewClient(server.URL, "u", "p").GetAccount(context.Background(), 1000096)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if a.Username != "jdoe" {
		t.Errorf("Username = %q", a.Username)
	}
}
