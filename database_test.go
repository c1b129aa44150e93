package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEmojiDB(t *testing.T) *EmojiDB {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, InitDatabase(ctx, filepath.Join(t.TempDir(), "test.db")))
	t.Cleanup(CloseDatabase)
	return NewEmojiDB(DB)
}

func TestCreateAndFetchEmoji(t *testing.T) {
	db := testEmojiDB(t)
	ctx := context.Background()

	emojiID, owner := snowflake.ID(100), snowflake.ID(200)
	require.NoError(t, db.CreateEmoji(ctx, emojiID, "blob", owner, "00000000000000ff"))

	row, err := db.FetchEmoji(ctx, emojiID)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, emojiID, row.ID)
	assert.Equal(t, "blob", row.Name)
	assert.Equal(t, owner, row.AddedBy)
	assert.Equal(t, "00000000000000ff", row.Hash)

	missing, err := db.FetchEmoji(ctx, snowflake.ID(999))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCreateEmojiIsIdempotent(t *testing.T) {
	db := testEmojiDB(t)
	ctx := context.Background()

	emojiID := snowflake.ID(100)
	require.NoError(t, db.CreateEmoji(ctx, emojiID, "blob", snowflake.ID(200), "aa"))
	require.NoError(t, db.CreateEmoji(ctx, emojiID, "other", snowflake.ID(300), "bb"))

	row, err := db.FetchEmoji(ctx, emojiID)
	require.NoError(t, err)
	assert.Equal(t, "blob", row.Name)
}

func TestUpdateEmojiNameAndHash(t *testing.T) {
	db := testEmojiDB(t)
	ctx := context.Background()

	emojiID := snowflake.ID(100)
	require.NoError(t, db.CreateEmoji(ctx, emojiID, "blob", snowflake.ID(200), ""))
	require.NoError(t, db.UpdateEmojiName(ctx, emojiID, "blobu"))
	require.NoError(t, db.UpdateEmojiHash(ctx, emojiID, "00000000000000ff"))

	row, err := db.FetchEmoji(ctx, emojiID)
	require.NoError(t, err)
	assert.Equal(t, "blobu", row.Name)
	assert.Equal(t, "00000000000000ff", row.Hash)
}

func TestUpsertUsageIsAdditive(t *testing.T) {
	db := testEmojiDB(t)
	ctx := context.Background()

	emojiID, userID := snowflake.ID(100), snowflake.ID(200)
	require.NoError(t, db.CreateEmoji(ctx, emojiID, "blob", userID, ""))
	require.NoError(t, db.EnsureUser(ctx, userID))

	amount, err := db.UpsertUsage(ctx, emojiID, userID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, amount)

	amount, err = db.UpsertUsage(ctx, emojiID, userID, 3)
	require.NoError(t, err)
	assert.Equal(t, 8, amount)

	// Zero delta reads without modifying.
	amount, err = db.UpsertUsage(ctx, emojiID, userID, 0)
	require.NoError(t, err)
	assert.Equal(t, 8, amount)
}

func TestFetchUserUsages(t *testing.T) {
	db := testEmojiDB(t)
	ctx := context.Background()

	userID := snowflake.ID(200)
	require.NoError(t, db.EnsureUser(ctx, userID))
	_, err := db.UpsertUsage(ctx, snowflake.ID(1), userID, 7)
	require.NoError(t, err)
	_, err = db.UpsertUsage(ctx, snowflake.ID(2), userID, 3)
	require.NoError(t, err)
	_, err = db.UpsertUsage(ctx, snowflake.ID(1), snowflake.ID(999), 1)
	require.NoError(t, err)

	usages, err := db.FetchUserUsages(ctx, userID)
	require.NoError(t, err)
	require.Len(t, usages, 2)

	totals := map[snowflake.ID]int{}
	for _, u := range usages {
		assert.Equal(t, userID, u.UserID)
		totals[u.EmojiID] = u.Amount
	}
	assert.Equal(t, 7, totals[snowflake.ID(1)])
	assert.Equal(t, 3, totals[snowflake.ID(2)])
}

func TestRemoveEmojisCascades(t *testing.T) {
	db := testEmojiDB(t)
	ctx := context.Background()

	emojiID, userID := snowflake.ID(100), snowflake.ID(200)
	require.NoError(t, db.CreateEmoji(ctx, emojiID, "blob", userID, ""))
	require.NoError(t, db.EnsureUser(ctx, userID))
	_, err := db.UpsertUsage(ctx, emojiID, userID, 4)
	require.NoError(t, err)
	require.NoError(t, db.AddFavourite(ctx, emojiID, userID))

	require.NoError(t, db.RemoveEmojis(ctx, []snowflake.ID{emojiID}))

	row, err := db.FetchEmoji(ctx, emojiID)
	require.NoError(t, err)
	assert.Nil(t, row)

	usages, err := db.FetchUserUsages(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, usages)

	favs, err := db.ListFavourites(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, favs)
}

func TestPruneOrphanUsage(t *testing.T) {
	db := testEmojiDB(t)
	ctx := context.Background()

	emojiID, userID := snowflake.ID(100), snowflake.ID(200)
	require.NoError(t, db.CreateEmoji(ctx, emojiID, "blob", userID, ""))
	require.NoError(t, db.EnsureUser(ctx, userID))
	_, err := db.UpsertUsage(ctx, emojiID, userID, 4)
	require.NoError(t, err)

	// Rows pointing at an emoji that was never stored, as left behind by
	// a usage flush racing a delete.
	orphanID := snowflake.ID(900)
	_, err = db.UpsertUsage(ctx, orphanID, userID, 2)
	require.NoError(t, err)
	require.NoError(t, db.AddFavourite(ctx, orphanID, userID))

	require.NoError(t, db.PruneOrphanUsage(ctx))

	usages, err := db.FetchUserUsages(ctx, userID)
	require.NoError(t, err)
	require.Len(t, usages, 1)
	assert.Equal(t, emojiID, usages[0].EmojiID)
	assert.Equal(t, 4, usages[0].Amount)

	favs, err := db.ListFavourites(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, favs)
}

func TestFavouritesRoundTrip(t *testing.T) {
	db := testEmojiDB(t)
	ctx := context.Background()

	emojiID, userID := snowflake.ID(100), snowflake.ID(200)
	require.NoError(t, db.AddFavourite(ctx, emojiID, userID))
	require.NoError(t, db.AddFavourite(ctx, emojiID, userID)) // idempotent

	favs, err := db.ListFavourites(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{emojiID}, favs)

	require.NoError(t, db.RemoveFavourite(ctx, emojiID, userID))
	favs, err = db.ListFavourites(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, favs)
}

func TestBotConfigRoundTrip(t *testing.T) {
	testEmojiDB(t)
	ctx := context.Background()

	value, err := GetBotConfig(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, SetBotConfig(ctx, "mode", "guild"))
	require.NoError(t, SetBotConfig(ctx, "mode", "global"))

	value, err = GetBotConfig(ctx, "mode")
	require.NoError(t, err)
	assert.Equal(t, "global", value)
}
