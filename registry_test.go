package main

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ===========================
// Fakes
// ===========================

// Test image bytes, each mapped to a fixed fingerprint. imageATweaked is
// 8 bits from imageA (a near duplicate); everything else is pairwise far
// beyond the duplicate threshold.
var (
	imageA        = []byte("image-a")
	imageATweaked = []byte("image-a-tweaked")
	imageB        = []byte("image-b")
	imageC        = []byte("image-c")
	imageD        = []byte("image-d")
)

func testHasher(t *testing.T) *fakeHasher {
	t.Helper()
	return &fakeHasher{fps: map[string]Fingerprint{
		string(imageA):        fpFromBits(t, 0x0000000000000000),
		string(imageATweaked): fpFromBits(t, 0x00000000000000FF),
		string(imageB):        fpFromBits(t, 0x00000000FFFFFFFF),
		string(imageC):        fpFromBits(t, 0xFFFFFFFF00000000),
		string(imageD):        fpFromBits(t, 0xFFFFFFFFFFFFFFFF),
	}}
}

type fakeHasher struct {
	fps map[string]Fingerprint
}

func (h *fakeHasher) HashImage(ctx context.Context, data []byte) (Fingerprint, error) {
	if fp, ok := h.fps[string(data)]; ok {
		return fp, nil
	}
	return Fingerprint{}, NewValidationError(MsgHashDecodeFail, fmt.Errorf("unknown bytes"))
}

type fakeHost struct {
	mu     sync.Mutex
	nextID snowflake.ID
	emojis map[snowflake.ID]RemoteEmoji
	images map[snowflake.ID][]byte

	creates, renames, deletes int
	createErr, renameErr      error

	// onList runs after the listing snapshot is taken, outside the lock.
	onList func()
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		nextID: 1000,
		emojis: make(map[snowflake.ID]RemoteEmoji),
		images: make(map[snowflake.ID][]byte),
	}
}

func (h *fakeHost) List(ctx context.Context) ([]RemoteEmoji, error) {
	h.mu.Lock()
	var remotes []RemoteEmoji
	for _, e := range h.emojis {
		remotes = append(remotes, e)
	}
	hook := h.onList
	h.mu.Unlock()

	if hook != nil {
		hook()
	}
	return remotes, nil
}

func (h *fakeHost) Create(ctx context.Context, name string, image []byte) (RemoteEmoji, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.createErr != nil {
		return RemoteEmoji{}, h.createErr
	}
	h.creates++
	h.nextID++
	remote := RemoteEmoji{ID: h.nextID, Name: name}
	h.emojis[remote.ID] = remote
	h.images[remote.ID] = image
	return remote, nil
}

func (h *fakeHost) Rename(ctx context.Context, id snowflake.ID, name string) (RemoteEmoji, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.renameErr != nil {
		return RemoteEmoji{}, h.renameErr
	}
	h.renames++
	remote := h.emojis[id]
	remote.Name = name
	h.emojis[id] = remote
	return remote, nil
}

func (h *fakeHost) Delete(ctx context.Context, id snowflake.ID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deletes++
	delete(h.emojis, id)
	delete(h.images, id)
	return nil
}

func (h *fakeHost) ReadBytes(ctx context.Context, id snowflake.ID, animated bool) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	image, ok := h.images[id]
	if !ok {
		return nil, fmt.Errorf("no image for %s", id)
	}
	return image, nil
}

// fakeEmojiStore backs both the registry and the usage accumulator.
type fakeEmojiStore struct {
	*fakeUsageStore

	rowMu sync.Mutex
	rows  map[snowflake.ID]EmojiRow
	favs  map[snowflake.ID]map[snowflake.ID]struct{}
}

func newFakeEmojiStore() *fakeEmojiStore {
	return &fakeEmojiStore{
		fakeUsageStore: newFakeUsageStore(),
		rows:           make(map[snowflake.ID]EmojiRow),
		favs:           make(map[snowflake.ID]map[snowflake.ID]struct{}),
	}
}

func (s *fakeEmojiStore) FetchEmojis(ctx context.Context) ([]EmojiRow, error) {
	s.rowMu.Lock()
	defer s.rowMu.Unlock()
	var rows []EmojiRow
	for _, row := range s.rows {
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *fakeEmojiStore) FetchEmoji(ctx context.Context, emojiID snowflake.ID) (*EmojiRow, error) {
	s.rowMu.Lock()
	defer s.rowMu.Unlock()
	if row, ok := s.rows[emojiID]; ok {
		return &row, nil
	}
	return nil, nil
}

func (s *fakeEmojiStore) CreateEmoji(ctx context.Context, emojiID snowflake.ID, name string, ownerID snowflake.ID, hash string) error {
	s.rowMu.Lock()
	defer s.rowMu.Unlock()
	if _, exists := s.rows[emojiID]; !exists {
		s.rows[emojiID] = EmojiRow{ID: emojiID, Name: name, AddedBy: ownerID, Hash: hash}
	}
	return nil
}

func (s *fakeEmojiStore) UpdateEmojiName(ctx context.Context, emojiID snowflake.ID, name string) error {
	s.rowMu.Lock()
	defer s.rowMu.Unlock()
	row := s.rows[emojiID]
	row.Name = name
	s.rows[emojiID] = row
	return nil
}

func (s *fakeEmojiStore) UpdateEmojiHash(ctx context.Context, emojiID snowflake.ID, hash string) error {
	s.rowMu.Lock()
	defer s.rowMu.Unlock()
	row := s.rows[emojiID]
	row.ID = emojiID
	row.Hash = hash
	s.rows[emojiID] = row
	return nil
}

func (s *fakeEmojiStore) RemoveEmojis(ctx context.Context, emojiIDs []snowflake.ID) error {
	s.rowMu.Lock()
	defer s.rowMu.Unlock()
	for _, id := range emojiIDs {
		delete(s.rows, id)
		delete(s.favs, id)
	}
	return nil
}

func (s *fakeEmojiStore) PruneOrphanUsage(ctx context.Context) error {
	s.rowMu.Lock()
	defer s.rowMu.Unlock()
	s.fakeUsageStore.mu.Lock()
	defer s.fakeUsageStore.mu.Unlock()

	for key := range s.amounts {
		if _, ok := s.rows[key.emojiID]; !ok {
			delete(s.amounts, key)
		}
	}
	for emojiID := range s.favs {
		if _, ok := s.rows[emojiID]; !ok {
			delete(s.favs, emojiID)
		}
	}
	return nil
}

func (s *fakeEmojiStore) ListFavourites(ctx context.Context, userID snowflake.ID) ([]snowflake.ID, error) {
	s.rowMu.Lock()
	defer s.rowMu.Unlock()
	var ids []snowflake.ID
	for emojiID, users := range s.favs {
		if _, ok := users[userID]; ok {
			ids = append(ids, emojiID)
		}
	}
	return ids, nil
}

func (s *fakeEmojiStore) AddFavourite(ctx context.Context, emojiID, userID snowflake.ID) error {
	s.rowMu.Lock()
	defer s.rowMu.Unlock()
	if s.favs[emojiID] == nil {
		s.favs[emojiID] = make(map[snowflake.ID]struct{})
	}
	s.favs[emojiID][userID] = struct{}{}
	return nil
}

func (s *fakeEmojiStore) RemoveFavourite(ctx context.Context, emojiID, userID snowflake.ID) error {
	s.rowMu.Lock()
	defer s.rowMu.Unlock()
	if users, ok := s.favs[emojiID]; ok {
		delete(users, userID)
	}
	return nil
}

func (s *fakeEmojiStore) row(emojiID snowflake.ID) (EmojiRow, bool) {
	s.rowMu.Lock()
	defer s.rowMu.Unlock()
	row, ok := s.rows[emojiID]
	return row, ok
}

type fakeResolver struct {
	mu    sync.Mutex
	calls int
	names map[snowflake.ID]string
}

func (r *fakeResolver) ResolveUser(ctx context.Context, userID snowflake.ID) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if name, ok := r.names[userID]; ok {
		return name, nil
	}
	return "user-" + userID.String(), nil
}

func newTestRegistry(t *testing.T) (*EmojiRegistry, *fakeHost, *fakeEmojiStore, *fakeResolver) {
	t.Helper()
	host := newFakeHost()
	store := newFakeEmojiStore()
	resolver := &fakeResolver{names: make(map[snowflake.ID]string)}
	acc := NewUsageAccumulator(store)
	acc.window = testFlushWindow
	return NewEmojiRegistry(testHasher(t), acc, host, store, resolver), host, store, resolver
}

const testOwner = snowflake.ID(555)

// ===========================
// Create
// ===========================

func TestCreateRegistersEmoji(t *testing.T) {
	r, host, store, _ := newTestRegistry(t)

	emoji, err := r.Create(context.Background(), CreateOptions{
		Name: "blob", Image: imageA, OwnerID: testOwner,
	})
	require.NoError(t, err)
	assert.Equal(t, "blob", emoji.Name)
	assert.Equal(t, testOwner, emoji.OwnerID)

	assert.Same(t, emoji, r.Get(emoji.ID))
	assert.Same(t, emoji, r.GetByName("blob"))

	resolved, err := r.Resolve("blob")
	require.NoError(t, err)
	assert.Same(t, emoji, resolved)

	row, ok := store.row(emoji.ID)
	require.True(t, ok)
	assert.Equal(t, emoji.Fingerprint.String(), row.Hash)
	assert.Equal(t, 1, host.creates)
}

func TestCreateRejectsNearDuplicate(t *testing.T) {
	r, host, _, _ := newTestRegistry(t)

	first, err := r.Create(context.Background(), CreateOptions{
		Name: "blob", Image: imageA, OwnerID: testOwner,
	})
	require.NoError(t, err)

	_, err = r.Create(context.Background(), CreateOptions{
		Name: "blobier", Image: imageATweaked, OwnerID: testOwner,
	})
	require.Error(t, err)
	assert.True(t, IsUserError(err))

	dup, ok := err.(*DuplicateImageError)
	require.True(t, ok)
	require.Len(t, dup.Matches, 1)
	assert.Equal(t, first.ID, dup.Matches[0].ID)
	assert.Equal(t, 8, dup.Matches[0].Distance)
	assert.Contains(t, dup.Error(), first.ID.String())

	// Rejection happens before any remote call.
	assert.Equal(t, 1, host.creates)
	assert.Nil(t, r.GetByName("blobier"))
}

func TestCreateAllowDuplicateOverride(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)

	_, err := r.Create(context.Background(), CreateOptions{
		Name: "blob", Image: imageA, OwnerID: testOwner,
	})
	require.NoError(t, err)

	twin, err := r.Create(context.Background(), CreateOptions{
		Name: "blobtwin", Image: imageATweaked, OwnerID: testOwner, AllowDuplicate: true,
	})
	require.NoError(t, err)
	assert.NotNil(t, r.Get(twin.ID))
}

func TestCreateNameCollisionWithoutAutoRename(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)

	_, err := r.Create(context.Background(), CreateOptions{
		Name: "blob", Image: imageA, OwnerID: testOwner,
	})
	require.NoError(t, err)

	_, err = r.Create(context.Background(), CreateOptions{
		Name: "blob", Image: imageB, OwnerID: testOwner,
	})
	require.Error(t, err)
	assert.IsType(t, &ValidationError{}, err)
}

func TestCreateAutoRenameAppendsAndIncrements(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)
	ctx := context.Background()

	mk := func(name string, image []byte) *PersonalEmoji {
		e, err := r.Create(ctx, CreateOptions{
			Name: name, Image: image, OwnerID: testOwner,
			AllowDuplicate: true, AutoRename: true,
		})
		require.NoError(t, err)
		return e
	}

	assert.Equal(t, "Foo", mk("Foo", imageA).Name)
	assert.Equal(t, "Foo1", mk("Foo", imageB).Name)
	assert.Equal(t, "Foo2", mk("Foo", imageC).Name)

	assert.Equal(t, "Bar9", mk("Bar9", imageD).Name)
	assert.Equal(t, "Bar10", mk("Bar9", imageA).Name)
}

func TestCreateRejectsUndecodableImage(t *testing.T) {
	r, host, _, _ := newTestRegistry(t)

	_, err := r.Create(context.Background(), CreateOptions{
		Name: "blob", Image: []byte("garbage"), OwnerID: testOwner,
	})
	require.Error(t, err)
	assert.True(t, IsUserError(err))
	assert.Zero(t, host.creates)
}

// ===========================
// Rename
// ===========================

func TestRenameValidation(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)
	emoji, err := r.Create(context.Background(), CreateOptions{
		Name: "blob", Image: imageA, OwnerID: testOwner,
	})
	require.NoError(t, err)

	for _, newName := range []string{
		"blob",       // unchanged
		" blob ",     // unchanged after trimming
		"new name",   // spaces
		"ab",         // too short
		"abcdefghijabcdefghijabcdefghijabc", // 33 chars
	} {
		err := r.Rename(context.Background(), emoji, newName)
		require.Error(t, err, "name %q", newName)
		assert.IsType(t, &ValidationError{}, err)
		assert.Equal(t, "blob", emoji.Name)
	}
}

func TestRenameRejectsTakenName(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Create(ctx, CreateOptions{Name: "blob", Image: imageA, OwnerID: testOwner})
	require.NoError(t, err)
	other, err := r.Create(ctx, CreateOptions{Name: "other", Image: imageB, OwnerID: testOwner})
	require.NoError(t, err)

	err = r.Rename(ctx, other, "blob")
	require.Error(t, err)
	assert.IsType(t, &ValidationError{}, err)
	assert.Equal(t, "other", other.Name)
}

func TestRenameSwapsNameIndex(t *testing.T) {
	r, host, store, _ := newTestRegistry(t)
	emoji, err := r.Create(context.Background(), CreateOptions{
		Name: "blob", Image: imageA, OwnerID: testOwner,
	})
	require.NoError(t, err)

	require.NoError(t, r.Rename(context.Background(), emoji, "blobu"))
	assert.Equal(t, "blobu", emoji.Name)
	assert.Nil(t, r.GetByName("blob"))
	assert.Same(t, emoji, r.GetByName("blobu"))
	assert.Equal(t, 1, host.renames)

	row, ok := store.row(emoji.ID)
	require.True(t, ok)
	assert.Equal(t, "blobu", row.Name)
}

func TestRenameRemoteFailureLeavesStateUntouched(t *testing.T) {
	r, host, store, _ := newTestRegistry(t)
	emoji, err := r.Create(context.Background(), CreateOptions{
		Name: "blob", Image: imageA, OwnerID: testOwner,
	})
	require.NoError(t, err)

	host.renameErr = fmt.Errorf("remote down")
	err = r.Rename(context.Background(), emoji, "blobu")
	require.Error(t, err)
	assert.False(t, IsUserError(err))

	assert.Equal(t, "blob", emoji.Name)
	assert.Same(t, emoji, r.GetByName("blob"))
	row, _ := store.row(emoji.ID)
	assert.Equal(t, "blob", row.Name)
}

// ===========================
// Delete
// ===========================

func TestDeleteRemovesEverywhere(t *testing.T) {
	r, host, store, _ := newTestRegistry(t)
	emoji, err := r.Create(context.Background(), CreateOptions{
		Name: "blob", Image: imageA, OwnerID: testOwner,
	})
	require.NoError(t, err)

	// A pending usage increment must die with the emoji.
	r.RecordUsage(emoji, testOwner, 1)
	upsertsBefore := store.upsertCount()

	require.NoError(t, r.Delete(context.Background(), emoji))

	assert.Nil(t, r.Get(emoji.ID))
	assert.Nil(t, r.GetByName("blob"))
	assert.Empty(t, r.FindDuplicates(emoji.Fingerprint))
	_, ok := store.row(emoji.ID)
	assert.False(t, ok)
	assert.Equal(t, 1, host.deletes)

	waitForFlush()
	assert.Equal(t, upsertsBefore, store.upsertCount())

	_, err = r.Resolve("blob")
	require.Error(t, err)
	assert.True(t, IsUserError(err))
}

// ===========================
// Favourites & Owner
// ===========================

func TestFavouriteRoundTrip(t *testing.T) {
	r, _, store, _ := newTestRegistry(t)
	ctx := context.Background()
	emoji, err := r.Create(ctx, CreateOptions{Name: "blob", Image: imageA, OwnerID: testOwner})
	require.NoError(t, err)

	user := snowflake.ID(777)
	require.NoError(t, r.Favourite(ctx, emoji, user))
	assert.True(t, emoji.IsFavourite(user))

	ids, err := store.ListFavourites(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{emoji.ID}, ids)

	require.NoError(t, r.Unfavourite(ctx, emoji, user))
	assert.False(t, emoji.IsFavourite(user))
}

func TestWarmFavouritesLoadsOnce(t *testing.T) {
	r, _, store, _ := newTestRegistry(t)
	ctx := context.Background()
	emoji, err := r.Create(ctx, CreateOptions{Name: "blob", Image: imageA, OwnerID: testOwner})
	require.NoError(t, err)

	user := snowflake.ID(777)
	require.NoError(t, store.AddFavourite(ctx, emoji.ID, user))

	require.NoError(t, r.WarmFavourites(ctx, user))
	assert.True(t, emoji.IsFavourite(user))
}

func TestResolveOwnerCaches(t *testing.T) {
	r, _, _, resolver := newTestRegistry(t)
	ctx := context.Background()
	resolver.names[testOwner] = "leeineian"

	emoji, err := r.Create(ctx, CreateOptions{Name: "blob", Image: imageA, OwnerID: testOwner})
	require.NoError(t, err)

	name, err := r.ResolveOwner(ctx, emoji)
	require.NoError(t, err)
	assert.Equal(t, "leeineian", name)

	_, err = r.ResolveOwner(ctx, emoji)
	require.NoError(t, err)
	assert.Equal(t, 1, resolver.calls)
}

// ===========================
// Sync
// ===========================

func TestSyncAdoptsUntrackedRemote(t *testing.T) {
	r, host, store, _ := newTestRegistry(t)
	host.emojis[snowflake.ID(50)] = RemoteEmoji{ID: 50, Name: "stray"}
	host.images[snowflake.ID(50)] = imageB

	require.NoError(t, r.Sync(context.Background(), testOwner))

	emoji := r.Get(snowflake.ID(50))
	require.NotNil(t, emoji)
	assert.Equal(t, "stray", emoji.Name)
	assert.Equal(t, testOwner, emoji.OwnerID)

	row, ok := store.row(snowflake.ID(50))
	require.True(t, ok)
	assert.Equal(t, testOwner, row.AddedBy)
	assert.NotEmpty(t, row.Hash)

	// The backfilled fingerprint participates in duplicate checks.
	_, err := r.Create(context.Background(), CreateOptions{
		Name: "copy", Image: imageB, OwnerID: testOwner,
	})
	assert.IsType(t, &DuplicateImageError{}, err)
}

func TestSyncPrunesRemotelyDeleted(t *testing.T) {
	r, host, store, _ := newTestRegistry(t)
	ctx := context.Background()

	kept, err := r.Create(ctx, CreateOptions{Name: "kept", Image: imageA, OwnerID: testOwner})
	require.NoError(t, err)
	gone, err := r.Create(ctx, CreateOptions{Name: "gone", Image: imageB, OwnerID: testOwner})
	require.NoError(t, err)

	// The emoji disappears remotely out of band.
	host.mu.Lock()
	delete(host.emojis, gone.ID)
	host.mu.Unlock()

	require.NoError(t, r.Sync(ctx, testOwner))

	assert.NotNil(t, r.Get(kept.ID))
	assert.Nil(t, r.Get(gone.ID))
	assert.Nil(t, r.GetByName("gone"))
	_, ok := store.row(gone.ID)
	assert.False(t, ok)
}

func TestSyncFixesOutOfBandRename(t *testing.T) {
	r, host, store, _ := newTestRegistry(t)
	ctx := context.Background()

	emoji, err := r.Create(ctx, CreateOptions{Name: "oldname", Image: imageA, OwnerID: testOwner})
	require.NoError(t, err)

	host.mu.Lock()
	remote := host.emojis[emoji.ID]
	remote.Name = "newname"
	host.emojis[emoji.ID] = remote
	host.mu.Unlock()

	require.NoError(t, r.Sync(ctx, testOwner))

	assert.Equal(t, "newname", emoji.Name)
	assert.Nil(t, r.GetByName("oldname"))
	assert.Same(t, emoji, r.GetByName("newname"))
	row, _ := store.row(emoji.ID)
	assert.Equal(t, "newname", row.Name)
}

func TestSyncDoesNotPruneConcurrentCreate(t *testing.T) {
	r, host, store, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Create(ctx, CreateOptions{Name: "existing", Image: imageA, OwnerID: testOwner})
	require.NoError(t, err)

	// A create lands while the reconcile is between the remote list and
	// the durable read. It must not be mistaken for a remote deletion.
	created := make(chan *PersonalEmoji, 1)
	host.onList = func() {
		go func() {
			e, createErr := r.Create(ctx, CreateOptions{Name: "latecomer", Image: imageB, OwnerID: testOwner})
			assert.NoError(t, createErr)
			created <- e
		}()
		time.Sleep(50 * time.Millisecond)
	}

	require.NoError(t, r.Sync(ctx, testOwner))

	latecomer := <-created
	require.NotNil(t, latecomer)
	assert.Same(t, latecomer, r.Get(latecomer.ID))
	assert.Same(t, latecomer, r.GetByName("latecomer"))
	assert.Equal(t, testOwner, latecomer.OwnerID)
	row, ok := store.row(latecomer.ID)
	require.True(t, ok)
	assert.Equal(t, testOwner, row.AddedBy)
}

func TestSyncSweepsOrphanUsageRows(t *testing.T) {
	r, _, store, _ := newTestRegistry(t)
	ctx := context.Background()
	user := snowflake.ID(777)

	kept, err := r.Create(ctx, CreateOptions{Name: "kept", Image: imageA, OwnerID: testOwner})
	require.NoError(t, err)
	gone, err := r.Create(ctx, CreateOptions{Name: "gone", Image: imageB, OwnerID: testOwner})
	require.NoError(t, err)

	_, err = store.UpsertUsage(ctx, kept.ID, user, 2)
	require.NoError(t, err)

	require.NoError(t, r.Delete(ctx, gone))

	// A flush that lost the race with the delete lands after the cascade.
	_, err = store.UpsertUsage(ctx, gone.ID, user, 3)
	require.NoError(t, err)
	require.NoError(t, store.AddFavourite(ctx, gone.ID, user))

	require.NoError(t, r.Sync(ctx, testOwner))

	assert.Zero(t, store.amount(gone.ID, user))
	assert.Equal(t, 2, store.amount(kept.ID, user))
	favs, err := store.ListFavourites(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, favs)
}

func TestSyncBackfillsMissingHash(t *testing.T) {
	r, host, store, _ := newTestRegistry(t)
	ctx := context.Background()

	host.emojis[snowflake.ID(60)] = RemoteEmoji{ID: 60, Name: "nohash"}
	host.images[snowflake.ID(60)] = imageC
	require.NoError(t, store.CreateEmoji(ctx, snowflake.ID(60), "nohash", testOwner, ""))

	require.NoError(t, r.Sync(ctx, testOwner))

	row, ok := store.row(snowflake.ID(60))
	require.True(t, ok)
	assert.Equal(t, fpFromBits(t, 0xFFFFFFFF00000000).String(), row.Hash)

	emoji := r.Get(snowflake.ID(60))
	require.NotNil(t, emoji)
	assert.Equal(t, testOwner, emoji.OwnerID)
}

// ===========================
// Lifecycle
// ===========================

func TestEmojiLifecycle(t *testing.T) {
	r, _, store, _ := newTestRegistry(t)
	ctx := context.Background()
	user := snowflake.ID(777)

	blob, err := r.Create(ctx, CreateOptions{Name: "blobu", Image: imageA, OwnerID: testOwner})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		r.RecordUsage(blob, user, 1)
	}
	waitForFlush()
	assert.Equal(t, 5, r.Usage().Total(blob.ID, user))
	assert.Equal(t, 1, store.upsertCount())

	_, err = r.Create(ctx, CreateOptions{Name: "blobu2", Image: imageATweaked, OwnerID: testOwner})
	dup, ok := err.(*DuplicateImageError)
	require.True(t, ok)
	assert.Equal(t, blob.ID, dup.Matches[0].ID)

	require.NoError(t, r.Rename(ctx, blob, "blobi"))
	assert.Equal(t, 5, r.Usage().Total(blob.ID, user))

	require.NoError(t, r.Delete(ctx, blob))
	_, err = r.Resolve("blobi")
	assert.Error(t, err)
}
