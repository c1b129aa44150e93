package main

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/disgoorg/snowflake/v2"
)

// ============================================================================
// Emoji Registry
// ============================================================================

const (
	MsgRegistrySyncStart        = "Syncing emojis with the application..."
	MsgRegistrySyncDone         = "Synced %d emojis (%d hashed, %d pruned, %d renamed)"
	MsgRegistrySyncFail         = "Emoji sync failed: %v"
	MsgRegistryHashBackfill     = "Computing missing fingerprint for %s"
	MsgRegistryHashBackfillFail = "Fingerprint backfill failed for %s: %v"
	MsgRegistryCreated          = "Registered emoji %s (%s) for user %s"
	MsgRegistryRenamed          = "Renamed emoji %s: %s -> %s"
	MsgRegistryDeleted          = "Deleted emoji %s (%s)"

	ErrEmojiNotFound       = "No emoji named '%s' found!"
	ErrRenameSameName      = "New name is the same as the old name."
	ErrRenameSpaces        = "Spaces in names are not allowed."
	ErrRenameLength        = "Emoji names must be inbetween 3 to 32 characters."
	ErrNameTaken           = "An emoji named '%s' already exists."
	ErrNotOwner            = "Only %s may do this."
	ErrDuplicateImage      = "This image already exists as %s."
	ErrReadImageFail       = "Could not read that image: %v"

	EmojiNameMinLen = 3
	EmojiNameMaxLen = 32
)

// ValidationError is a user-correctable failure. Its message is shown to
// the user verbatim and never logged as unexpected.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func NewValidationError(format string, v ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, v...)}
}

// DuplicateImageError rejects a create whose image is too close to an
// existing emoji. Matches are sorted by ascending distance.
type DuplicateImageError struct {
	Matches []DuplicateMatch
}

func (e *DuplicateImageError) Error() string {
	names := make([]string, 0, len(e.Matches))
	for _, m := range e.Matches {
		names = append(names, m.ID.String())
	}
	return fmt.Sprintf(ErrDuplicateImage, strings.Join(names, ", "))
}

// IsUserError reports whether err should be shown to the user as-is.
func IsUserError(err error) bool {
	switch err.(type) {
	case *ValidationError, *DuplicateImageError:
		return true
	}
	return false
}

// PersonalEmoji is one registered application emoji.
type PersonalEmoji struct {
	ID          snowflake.ID
	Name        string
	Animated    bool
	OwnerID     snowflake.ID
	Fingerprint Fingerprint

	favMu      sync.Mutex
	favourites map[snowflake.ID]struct{}
}

func newPersonalEmoji(id snowflake.ID, name string, animated bool, ownerID snowflake.ID, fp Fingerprint) *PersonalEmoji {
	return &PersonalEmoji{
		ID:          id,
		Name:        name,
		Animated:    animated,
		OwnerID:     ownerID,
		Fingerprint: fp,
		favourites:  make(map[snowflake.ID]struct{}),
	}
}

// Mention renders the emoji the way Discord messages reference it.
func (e *PersonalEmoji) Mention() string {
	if e.Animated {
		return fmt.Sprintf("<a:%s:%s>", e.Name, e.ID)
	}
	return fmt.Sprintf("<:%s:%s>", e.Name, e.ID)
}

func (e *PersonalEmoji) IsFavourite(userID snowflake.ID) bool {
	e.favMu.Lock()
	defer e.favMu.Unlock()
	_, ok := e.favourites[userID]
	return ok
}

func (e *PersonalEmoji) setFavourite(userID snowflake.ID, fav bool) {
	e.favMu.Lock()
	defer e.favMu.Unlock()
	if fav {
		e.favourites[userID] = struct{}{}
	} else {
		delete(e.favourites, userID)
	}
}

// RemoteEmoji is the hosting service's view of an emoji.
type RemoteEmoji struct {
	ID       snowflake.ID
	Name     string
	Animated bool
}

// EmojiHost is the remote hosting seam (Discord's application emoji API
// in production).
type EmojiHost interface {
	List(ctx context.Context) ([]RemoteEmoji, error)
	Create(ctx context.Context, name string, image []byte) (RemoteEmoji, error)
	Rename(ctx context.Context, id snowflake.ID, name string) (RemoteEmoji, error)
	Delete(ctx context.Context, id snowflake.ID) error
	ReadBytes(ctx context.Context, id snowflake.ID, animated bool) ([]byte, error)
}

// EmojiStore is the durable store seam. EmojiDB implements it.
type EmojiStore interface {
	FetchEmojis(ctx context.Context) ([]EmojiRow, error)
	FetchEmoji(ctx context.Context, emojiID snowflake.ID) (*EmojiRow, error)
	CreateEmoji(ctx context.Context, emojiID snowflake.ID, name string, ownerID snowflake.ID, hash string) error
	UpdateEmojiName(ctx context.Context, emojiID snowflake.ID, name string) error
	UpdateEmojiHash(ctx context.Context, emojiID snowflake.ID, hash string) error
	RemoveEmojis(ctx context.Context, emojiIDs []snowflake.ID) error
	PruneOrphanUsage(ctx context.Context) error
	ListFavourites(ctx context.Context, userID snowflake.ID) ([]snowflake.ID, error)
	AddFavourite(ctx context.Context, emojiID, userID snowflake.ID) error
	RemoveFavourite(ctx context.Context, emojiID, userID snowflake.ID) error
	EnsureUser(ctx context.Context, userID snowflake.ID) error
}

// UserResolver turns a raw user id into a display name, caching results.
type UserResolver interface {
	ResolveUser(ctx context.Context, userID snowflake.ID) (string, error)
}

type CreateOptions struct {
	Name    string
	Image   []byte
	OwnerID snowflake.ID

	// AllowDuplicate skips the near-duplicate rejection.
	AllowDuplicate bool

	// AutoRename uniquifies a colliding name instead of failing.
	AutoRename bool
}

// EmojiRegistry owns the id and name indices and coordinates every
// mutation against the host, the store and the similarity index.
type EmojiRegistry struct {
	hasher   ImageHasher
	index    *SimilarityIndex
	usage    *UsageAccumulator
	host     EmojiHost
	store    EmojiStore
	resolver UserResolver

	mu     sync.RWMutex
	byID   map[snowflake.ID]*PersonalEmoji
	byName map[string]snowflake.ID

	// createMu serializes check-name, remote-create and register so no
	// create observes a stale name set.
	createMu sync.Mutex

	warmFavMu  sync.Mutex
	warmedFavs map[snowflake.ID]struct{}

	ownerMu    sync.Mutex
	ownerNames map[snowflake.ID]string
}

func NewEmojiRegistry(hasher ImageHasher, usage *UsageAccumulator, host EmojiHost, store EmojiStore, resolver UserResolver) *EmojiRegistry {
	return &EmojiRegistry{
		hasher:     hasher,
		index:      NewSimilarityIndex(),
		usage:      usage,
		host:       host,
		store:      store,
		resolver:   resolver,
		byID:       make(map[snowflake.ID]*PersonalEmoji),
		byName:     make(map[string]snowflake.ID),
		warmedFavs: make(map[snowflake.ID]struct{}),
		ownerNames: make(map[snowflake.ID]string),
	}
}

func (r *EmojiRegistry) Usage() *UsageAccumulator { return r.usage }

func (r *EmojiRegistry) register(e *PersonalEmoji) {
	r.mu.Lock()
	r.byID[e.ID] = e
	r.byName[e.Name] = e.ID
	r.mu.Unlock()
	r.index.Insert(e.ID, e.Fingerprint)
}

func (r *EmojiRegistry) Get(id snowflake.ID) *PersonalEmoji {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

func (r *EmojiRegistry) GetByName(name string) *PersonalEmoji {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.byName[name]; ok {
		return r.byID[id]
	}
	return nil
}

// Resolve looks an emoji up by raw id or by name.
func (r *EmojiRegistry) Resolve(arg string) (*PersonalEmoji, error) {
	arg = strings.TrimSpace(arg)
	if id, err := snowflake.Parse(arg); err == nil {
		if e := r.Get(id); e != nil {
			return e, nil
		}
	}
	if e := r.GetByName(arg); e != nil {
		return e, nil
	}
	return nil, NewValidationError(ErrEmojiNotFound, arg)
}

func (r *EmojiRegistry) All() []*PersonalEmoji {
	r.mu.RLock()
	defer r.mu.RUnlock()
	emojis := make([]*PersonalEmoji, 0, len(r.byID))
	for _, e := range r.byID {
		emojis = append(emojis, e)
	}
	return emojis
}

func (r *EmojiRegistry) FindDuplicates(fp Fingerprint) []DuplicateMatch {
	return r.index.Query(fp)
}

// Create runs the full creation chain: hash, duplicate check, name
// uniquification, remote create, durable row, then in-memory registration.
func (r *EmojiRegistry) Create(ctx context.Context, opts CreateOptions) (*PersonalEmoji, error) {
	fp, err := r.hasher.HashImage(ctx, opts.Image)
	if err != nil {
		return nil, err
	}

	if !opts.AllowDuplicate {
		if matches := r.index.Query(fp); len(matches) > 0 {
			return nil, &DuplicateImageError{Matches: matches}
		}
	}

	r.createMu.Lock()
	defer r.createMu.Unlock()

	name := opts.Name
	if r.GetByName(name) != nil {
		if !opts.AutoRename {
			return nil, NewValidationError(ErrNameTaken, name)
		}
		name = r.uniquifyName(name)
	}

	remote, err := r.host.Create(ctx, name, opts.Image)
	if err != nil {
		return nil, err
	}

	if err := r.store.EnsureUser(ctx, opts.OwnerID); err != nil {
		return nil, err
	}
	if err := r.store.CreateEmoji(ctx, remote.ID, remote.Name, opts.OwnerID, fp.String()); err != nil {
		return nil, err
	}

	e := newPersonalEmoji(remote.ID, remote.Name, remote.Animated, opts.OwnerID, fp)
	r.register(e)
	LogRegistry(MsgRegistryCreated, e.Name, e.ID, opts.OwnerID)
	return e, nil
}

var trailingDigitsRe = regexp.MustCompile(`^(.+?)(\d*)$`)

// uniquifyName increments a trailing number until the name is free,
// appending "1" when there is none. Caller holds createMu.
func (r *EmojiRegistry) uniquifyName(name string) string {
	for r.GetByName(name) != nil {
		m := trailingDigitsRe.FindStringSubmatch(name)
		if num, err := strconv.Atoi(m[2]); err == nil {
			name = m[1] + strconv.Itoa(num+1)
		} else {
			name = name + "1"
		}
	}
	return name
}

// ValidateEmojiName applies the hosting service's name constraints.
func ValidateEmojiName(name string) error {
	if strings.Contains(name, " ") {
		return NewValidationError(ErrRenameSpaces)
	}
	if len(name) < EmojiNameMinLen || len(name) > EmojiNameMaxLen {
		return NewValidationError(ErrRenameLength)
	}
	return nil
}

// Rename applies the new name remotely first, then durably; the
// in-memory entity changes only after both succeed.
func (r *EmojiRegistry) Rename(ctx context.Context, e *PersonalEmoji, newName string) error {
	newName = strings.TrimSpace(newName)
	oldName := e.Name
	if newName == oldName {
		return NewValidationError(ErrRenameSameName)
	}
	if err := ValidateEmojiName(newName); err != nil {
		return err
	}

	r.createMu.Lock()
	defer r.createMu.Unlock()
	if other := r.GetByName(newName); other != nil && other.ID != e.ID {
		return NewValidationError(ErrNameTaken, newName)
	}

	remote, err := r.host.Rename(ctx, e.ID, newName)
	if err != nil {
		return err
	}
	if err := r.store.UpdateEmojiName(ctx, e.ID, remote.Name); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.byName, oldName)
	e.Name = remote.Name
	r.byName[e.Name] = e.ID
	r.mu.Unlock()

	LogRegistry(MsgRegistryRenamed, e.ID, oldName, e.Name)
	return nil
}

// Delete removes the emoji remotely, cascades the durable rows, cancels
// any pending usage flush and finally drops the in-memory entries. The
// ownership check belongs to the command layer.
func (r *EmojiRegistry) Delete(ctx context.Context, e *PersonalEmoji) error {
	if err := r.host.Delete(ctx, e.ID); err != nil {
		return err
	}
	if err := r.store.RemoveEmojis(ctx, []snowflake.ID{e.ID}); err != nil {
		return err
	}

	r.usage.Discard(e.ID)

	r.mu.Lock()
	delete(r.byID, e.ID)
	if id, ok := r.byName[e.Name]; ok && id == e.ID {
		delete(r.byName, e.Name)
	}
	r.mu.Unlock()
	r.index.Remove(e.ID)

	LogRegistry(MsgRegistryDeleted, e.Name, e.ID)
	return nil
}

func (r *EmojiRegistry) Favourite(ctx context.Context, e *PersonalEmoji, userID snowflake.ID) error {
	if err := r.store.EnsureUser(ctx, userID); err != nil {
		return err
	}
	if err := r.store.AddFavourite(ctx, e.ID, userID); err != nil {
		return err
	}
	e.setFavourite(userID, true)
	return nil
}

func (r *EmojiRegistry) Unfavourite(ctx context.Context, e *PersonalEmoji, userID snowflake.ID) error {
	if err := r.store.RemoveFavourite(ctx, e.ID, userID); err != nil {
		return err
	}
	e.setFavourite(userID, false)
	return nil
}

// WarmFavourites bulk-loads a user's favourite set once.
func (r *EmojiRegistry) WarmFavourites(ctx context.Context, userID snowflake.ID) error {
	r.warmFavMu.Lock()
	if _, done := r.warmedFavs[userID]; done {
		r.warmFavMu.Unlock()
		return nil
	}
	r.warmedFavs[userID] = struct{}{}
	r.warmFavMu.Unlock()

	ids, err := r.store.ListFavourites(ctx, userID)
	if err != nil {
		r.warmFavMu.Lock()
		delete(r.warmedFavs, userID)
		r.warmFavMu.Unlock()
		return err
	}
	for _, id := range ids {
		if e := r.Get(id); e != nil {
			e.setFavourite(userID, true)
		}
	}
	return nil
}

// ResolveOwner lazily resolves the owner's display name through the
// caching user resolver.
func (r *EmojiRegistry) ResolveOwner(ctx context.Context, e *PersonalEmoji) (string, error) {
	r.ownerMu.Lock()
	if name, ok := r.ownerNames[e.OwnerID]; ok {
		r.ownerMu.Unlock()
		return name, nil
	}
	r.ownerMu.Unlock()

	name, err := r.resolver.ResolveUser(ctx, e.OwnerID)
	if err != nil {
		return "", err
	}

	r.ownerMu.Lock()
	r.ownerNames[e.OwnerID] = name
	r.ownerMu.Unlock()
	return name, nil
}

// RecordUsage is the explicit usage entry point for listeners and
// commands.
func (r *EmojiRegistry) RecordUsage(e *PersonalEmoji, userID snowflake.ID, weight int) {
	r.usage.Record(e.ID, userID, weight)
}

// Sync reconciles the registry with the hosting service: registers every
// remote emoji, backfills missing durable rows and fingerprints, prunes
// rows whose emoji is gone remotely and fixes names changed out of band.
func (r *EmojiRegistry) Sync(ctx context.Context, defaultOwner snowflake.ID) error {
	// Snapshot under the creation lock. A create committing between the
	// remote list and the durable read would show up as a row with no
	// remote emoji and be pruned as if deleted out of band.
	r.createMu.Lock()
	remotes, err := r.host.List(ctx)
	if err != nil {
		r.createMu.Unlock()
		return err
	}
	stored, err := r.store.FetchEmojis(ctx)
	r.createMu.Unlock()
	if err != nil {
		return err
	}
	rows := make(map[snowflake.ID]EmojiRow, len(stored))
	for _, row := range stored {
		rows[row.ID] = row
	}

	var hashed, renamed int
	for _, remote := range remotes {
		row, known := rows[remote.ID]

		var fp Fingerprint
		owner := defaultOwner
		switch {
		case known && row.Hash != "":
			owner = row.AddedBy
			fp, err = ParseFingerprint(row.Hash)
			if err != nil {
				LogRegistry(MsgRegistryHashBackfillFail, remote.Name, err)
				fp, err = r.backfillFingerprint(ctx, remote)
				if err == nil {
					hashed++
				}
			}
		case known:
			owner = row.AddedBy
			LogRegistry(MsgRegistryHashBackfill, remote.Name)
			fp, err = r.backfillFingerprint(ctx, remote)
			if err != nil {
				LogRegistry(MsgRegistryHashBackfillFail, remote.Name, err)
			} else {
				hashed++
			}
		default:
			LogRegistry(MsgRegistryHashBackfill, remote.Name)
			fp, err = r.backfillFingerprint(ctx, remote)
			if err != nil {
				LogRegistry(MsgRegistryHashBackfillFail, remote.Name, err)
			} else {
				hashed++
			}
			if err := r.store.EnsureUser(ctx, owner); err != nil {
				return err
			}
			if err := r.store.CreateEmoji(ctx, remote.ID, remote.Name, owner, fp.String()); err != nil {
				return err
			}
		}

		if known && row.Name != remote.Name {
			if err := r.store.UpdateEmojiName(ctx, remote.ID, remote.Name); err != nil {
				return err
			}
			renamed++
		}

		if existing := r.Get(remote.ID); existing != nil {
			r.mu.Lock()
			if existing.Name != remote.Name {
				delete(r.byName, existing.Name)
				existing.Name = remote.Name
				r.byName[existing.Name] = existing.ID
			}
			r.mu.Unlock()
			if existing.Fingerprint.IsZero() && !fp.IsZero() {
				existing.Fingerprint = fp
				r.index.Insert(existing.ID, fp)
			}
		} else {
			r.register(newPersonalEmoji(remote.ID, remote.Name, remote.Animated, owner, fp))
		}

		delete(rows, remote.ID)
	}

	// Whatever is left in rows no longer exists remotely.
	var prune []snowflake.ID
	for id := range rows {
		prune = append(prune, id)
	}
	if len(prune) > 0 {
		if err := r.store.RemoveEmojis(ctx, prune); err != nil {
			return err
		}
		for _, id := range prune {
			r.usage.Discard(id)
			r.index.Remove(id)
			r.mu.Lock()
			if e, ok := r.byID[id]; ok {
				delete(r.byID, id)
				if nid, ok := r.byName[e.Name]; ok && nid == id {
					delete(r.byName, e.Name)
				}
			}
			r.mu.Unlock()
		}
	}

	// A usage flush that raced a delete can leave counter rows behind
	// after the emoji row is gone; the sweep clears them.
	if err := r.store.PruneOrphanUsage(ctx); err != nil {
		return err
	}

	LogRegistry(MsgRegistrySyncDone, len(remotes), hashed, len(prune), renamed)
	return nil
}

func (r *EmojiRegistry) backfillFingerprint(ctx context.Context, remote RemoteEmoji) (Fingerprint, error) {
	data, err := r.host.ReadBytes(ctx, remote.ID, remote.Animated)
	if err != nil {
		return Fingerprint{}, err
	}
	fp, err := r.hasher.HashImage(ctx, data)
	if err != nil {
		return Fingerprint{}, err
	}
	if err := r.store.UpdateEmojiHash(ctx, remote.ID, fp.String()); err != nil {
		return Fingerprint{}, err
	}
	return fp, nil
}
