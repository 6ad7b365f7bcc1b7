// Package accounts maps remote account references to local accounts.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/steveyegge/gimport/internal/cache"
	"github.com/steveyegge/gimport/internal/debug"
	"github.com/steveyegge/gimport/internal/errdefs"
	"github.com/steveyegge/gimport/internal/remote"
	"github.com/steveyegge/gimport/internal/storage"
	"github.com/steveyegge/gimport/internal/types"
)

// DetailFetcher loads the full detail of a remote account. *remote.Client
// satisfies it.
type DetailFetcher interface {
	GetAccount(ctx context.Context, accountID int) (*remote.AccountInfo, error)
}

// Resolver resolves remote accounts for one import. Results are memoized for
// the Resolver's lifetime only; create a new Resolver per import.
type Resolver struct {
	store   storage.AccountStore
	remote  DetailFetcher
	evictor cache.Evictor

	// CreateMissing allows accounts with no local match to be created.
	CreateMissing bool

	mu   sync.Mutex
	memo map[int]int
}

// NewResolver creates a resolver. evictor may be nil.
func NewResolver(store storage.AccountStore, fetcher DetailFetcher, evictor cache.Evictor) *Resolver {
	if evictor == nil {
		evictor = cache.Noop{}
	}
	return &Resolver{
		store:         store,
		remote:        fetcher,
		evictor:       evictor,
		CreateMissing: true,
		memo:          make(map[int]int),
	}
}

// ResolveAccount returns the local account ID for ref. It matches by
// username, then by email, fetching the remote account detail when the
// reference carries no username. Without a match the account is created if
// CreateMissing is set; otherwise the result is errdefs.ErrNoSuchAccount.
func (r *Resolver) ResolveAccount(ctx context.Context, ref remote.AccountInfo) (int, error) {
	if ref.AccountID != 0 {
		r.mu.Lock()
		id, ok := r.memo[ref.AccountID]
		r.mu.Unlock()
		if ok {
			return id, nil
		}
	}

	id, err := r.resolve(ctx, ref)
	if err != nil {
		return 0, err
	}
	if ref.AccountID != 0 {
		r.mu.Lock()
		r.memo[ref.AccountID] = id
		r.mu.Unlock()
	}
	return id, nil
}

func (r *Resolver) resolve(ctx context.Context, ref remote.AccountInfo) (int, error) {
	a, err := r.lookup(ctx, ref)
	if err != nil {
		return 0, err
	}
	if a != nil {
		return a.ID, nil
	}

	if ref.Username == "" && ref.AccountID != 0 && r.remote != nil {
		detail, err := r.remote.GetAccount(ctx, ref.AccountID)
		if err != nil {
			return 0, err
		}
		ref = mergeDetail(ref, detail)
		a, err := r.lookup(ctx, ref)
		if err != nil {
			return 0, err
		}
		if a != nil {
			return a.ID, nil
		}
	}

	if ref.Username == "" && ref.Email == "" {
		return 0, errdefs.NoSuchAccount("remote account %d has neither username nor email", ref.AccountID)
	}
	if !r.CreateMissing {
		return 0, errdefs.NoSuchAccount("no local account for %s", describe(ref))
	}
	return r.create(ctx, ref)
}

// lookup returns nil, nil when nothing matches.
func (r *Resolver) lookup(ctx context.Context, ref remote.AccountInfo) (*types.Account, error) {
	if ref.Username != "" {
		a, err := r.store.GetAccountByUsername(ctx, ref.Username)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("failed to look up account %s: %w", ref.Username, err)
		}
	}
	if ref.Email != "" {
		a, err := r.store.GetAccountByEmail(ctx, ref.Email)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("failed to look up account %s: %w", ref.Email, err)
		}
	}
	return nil, nil
}

func (r *Resolver) create(ctx context.Context, ref remote.AccountInfo) (int, error) {
	id, err := r.store.NextAccountID(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate account id: %w", err)
	}
	a := &types.Account{
		ID:           id,
		Username:     ref.Username,
		FullName:     ref.Name,
		Email:        ref.Email,
		Active:       true,
		RegisteredAt: time.Now().UTC(),
	}
	if err := r.store.CreateAccount(ctx, a); err != nil {
		return 0, fmt.Errorf("failed to create account for %s: %w", describe(ref), err)
	}
	r.evictor.EvictAccount(a)
	debug.Logf("created account %d for %s\n", id, describe(ref))
	return id, nil
}

// ResolveAll resolves every ref before the caller writes anything, returning
// local IDs in the order of refs. The first failure aborts.
func (r *Resolver) ResolveAll(ctx context.Context, refs []remote.AccountInfo) ([]int, error) {
	ids := make([]int, len(refs))
	for i, ref := range refs {
		id, err := r.ResolveAccount(ctx, ref)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

func mergeDetail(ref remote.AccountInfo, detail *remote.AccountInfo) remote.AccountInfo {
	if detail == nil {
		return ref
	}
	if ref.Username == "" {
		ref.Username = detail.Username
	}
	if ref.Email == "" {
		ref.Email = detail.Email
	}
	if ref.Name == "" {
		ref.Name = detail.Name
	}
	return ref
}

func describe(ref remote.AccountInfo) string {
	switch {
	case ref.Username != "":
		return ref.Username
	case ref.Email != "":
		return ref.Email
	}
	return fmt.Sprintf("remote account %d", ref.AccountID)
}
