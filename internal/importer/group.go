package importer

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/steveyegge/gimport/internal/errdefs"
	"github.com/steveyegge/gimport/internal/groups"
	"github.com/steveyegge/gimport/internal/importlog"
	"github.com/steveyegge/gimport/internal/telemetry"
)

// GroupInput is one group import request.
type GroupInput struct {
	From                 string `json:"from"`
	User                 string `json:"user"`
	Pass                 string `json:"pass"`
	ImportOwnerGroup     bool   `json:"import_owner_group,omitempty"`
	ImportIncludedGroups bool   `json:"import_included_groups,omitempty"`
}

// Validate checks the request before the source is contacted.
func (in GroupInput) Validate() error {
	return Input{From: in.From, User: in.User, Pass: in.Pass}.Validate()
}

// GroupImporter imports groups. Groups need neither an import lock nor a
// repository; their uniqueness is enforced by the store.
type GroupImporter struct {
	deps     Deps
	policies []groups.Policy

	// VisibleToAll is applied to every created group.
	VisibleToAll bool
}

// NewGroupImporter creates a group importer.
func NewGroupImporter(deps Deps, policies ...groups.Policy) *GroupImporter {
	return &GroupImporter{deps: deps, policies: policies}
}

// Import imports the group named nameOrUUID and, when the input asks for it,
// its missing owner and included groups. Each attempt is recorded in the
// import log once.
func (g *GroupImporter) Import(ctx context.Context, nameOrUUID string, in GroupInput, actor importlog.Actor) (res *groups.Result, err error) {
	ctx, end := telemetry.StartStage(ctx, "group_import", attribute.String("gimport.group", nameOrUUID))
	defer func() {
		end(err)
		outcome := "ok"
		if err != nil {
			outcome = errdefs.Kind(err)
		}
		telemetry.RecordImport(ctx, "group", outcome)
	}()

	if err := in.Validate(); err != nil {
		return nil, err
	}
	if nameOrUUID == "" {
		return nil, errdefs.BadRequest("group name is required")
	}

	client := g.deps.remote(in.From, in.User, in.Pass)
	im := groups.NewImporter(g.deps.Store, client, g.deps.resolver(client), g.deps.evictor())
	im.VisibleToAll = g.VisibleToAll
	for _, p := range g.policies {
		im.AddPolicy(p)
	}

	res, err = im.Import(ctx, nameOrUUID, groups.Options{
		ImportOwnerGroup:     in.ImportOwnerGroup,
		ImportIncludedGroups: in.ImportIncludedGroups,
	})
	if res != nil {
		telemetry.RecordGroupsCreated(ctx, len(res.Created))
	}
	if g.deps.Log != nil {
		g.deps.Log.OnGroupImport(importlog.GroupEvent{Actor: actor, From: in.From, Group: nameOrUUID, Err: err})
	}
	if err != nil {
		return res, err
	}
	if len(res.Created) > 0 {
		g.deps.commit(ctx, fmt.Sprintf("import group %s from %s", nameOrUUID, in.From))
	}
	return res, nil
}
