package main

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
)

// ============================================================================
// Passive Usage & Reactions
// ============================================================================

const (
	MsgReactNoRecent    = "You haven't sent any emojis recently!"
	MsgReactPick        = "Pick an emoji to react with:"
	MsgReactFail        = "Could not add that reaction: %v"
	MsgReactGone        = "That emoji no longer exists."
	MsgReactBadCustomID = "Malformed react custom ID: %s"
	MsgReactAddFail     = "AddReaction failed: %v"

	RecentEmojiLimit = 10
)

// emojiMentionRe matches custom emoji mentions like <:name:id> and
// <a:name:id> in message content.
var emojiMentionRe = regexp.MustCompile(`<(a?):([A-Za-z0-9_]+):([0-9]+)>`)

type EmojiMention struct {
	ID       snowflake.ID
	Name     string
	Animated bool
}

// FindEmojiMentions extracts every custom emoji mention from content,
// deduplicated by ID in first-seen order.
func FindEmojiMentions(content string) []EmojiMention {
	var mentions []EmojiMention
	seen := map[snowflake.ID]struct{}{}
	for _, m := range emojiMentionRe.FindAllStringSubmatch(content, -1) {
		id, err := snowflake.Parse(m[3])
		if err != nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		mentions = append(mentions, EmojiMention{ID: id, Name: m[2], Animated: m[1] == "a"})
	}
	return mentions
}

// ===========================
// Recent Emoji Tracker
// ===========================

var recentMu sync.Mutex
var recentEmojis = map[snowflake.ID][]snowflake.ID{}

// noteExplicitSent records that userID just sent emoji, keeping the
// newest RecentEmojiLimit per user with duplicates moved to the front.
func noteExplicitSent(userID snowflake.ID, emoji *PersonalEmoji) {
	recentMu.Lock()
	defer recentMu.Unlock()

	recent := recentEmojis[userID]
	out := make([]snowflake.ID, 0, len(recent)+1)
	out = append(out, emoji.ID)
	for _, id := range recent {
		if id == emoji.ID {
			continue
		}
		out = append(out, id)
	}
	if len(out) > RecentEmojiLimit {
		out = out[:RecentEmojiLimit]
	}
	recentEmojis[userID] = out
}

// recentSent returns the user's recently sent emojis, newest first,
// dropping any that have since been deleted.
func recentSent(userID snowflake.ID) []*PersonalEmoji {
	recentMu.Lock()
	ids := recentEmojis[userID]
	recentMu.Unlock()

	var out []*PersonalEmoji
	for _, id := range ids {
		if e := registry.Get(id); e != nil {
			out = append(out, e)
		}
	}
	return out
}

// ===========================
// Listeners
// ===========================

func init() {
	RegisterMessageCreateHandler(onEmojiMessage)
	RegisterMessageReactionAddHandler(onEmojiReaction)

	RegisterCommand(discord.MessageCommandCreate{
		Name: "React This Message",
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
	}, handleReactThisMessage)
	RegisterComponentHandler("react:", handleReactButton)
}

func onEmojiMessage(event *events.MessageCreate) {
	if registry == nil || event.Message.Author.Bot {
		return
	}

	authorID := event.Message.Author.ID
	for _, mention := range FindEmojiMentions(event.Message.Content) {
		emoji := registry.Get(mention.ID)
		if emoji == nil {
			continue
		}
		registry.RecordUsage(emoji, authorID, 1)
		noteExplicitSent(authorID, emoji)
	}
}

func onEmojiReaction(event *events.GuildMessageReactionAdd) {
	if registry == nil || event.Emoji.ID == nil {
		return
	}
	if event.Member.User.Bot {
		return
	}

	emoji := registry.Get(*event.Emoji.ID)
	if emoji == nil {
		return
	}
	registry.RecordUsage(emoji, event.UserID, 1)
}

// ===========================
// React This Message
// ===========================

func handleReactThisMessage(event *events.ApplicationCommandInteractionCreate) {
	if registry == nil {
		_ = respondText(event, MsgEmojiNotReady, true)
		return
	}

	data := event.MessageCommandInteractionData()
	message := data.TargetMessage()

	recent := recentSent(event.User().ID)
	if len(recent) == 0 {
		_ = respondText(event, MsgReactNoRecent, true)
		return
	}

	var buttons []discord.InteractiveComponent
	for i, e := range recent {
		if i >= 5 {
			break
		}
		button := discord.NewSecondaryButton(e.Name,
			fmt.Sprintf("react:%s:%s:%s", message.ChannelID, message.ID, e.ID)).
			WithEmoji(discord.ComponentEmoji{ID: e.ID, Name: e.Name, Animated: e.Animated})
		buttons = append(buttons, button)
	}

	_ = event.CreateMessage(discord.NewMessageCreate().
		WithContent(MsgReactPick).
		WithEphemeral(true).
		WithComponents(discord.NewActionRow(buttons...)))
}

func handleReactButton(event *events.ComponentInteractionCreate) {
	parts := strings.Split(event.Data.CustomID(), ":")
	if len(parts) != 4 {
		LogEmoji(MsgReactBadCustomID, event.Data.CustomID())
		return
	}

	channelID, err1 := snowflake.Parse(parts[1])
	messageID, err2 := snowflake.Parse(parts[2])
	emojiID, err3 := snowflake.Parse(parts[3])
	if err1 != nil || err2 != nil || err3 != nil {
		LogEmoji(MsgReactBadCustomID, event.Data.CustomID())
		return
	}

	emoji := registry.Get(emojiID)
	if emoji == nil {
		_ = event.CreateMessage(discord.NewMessageCreate().
			WithContent(MsgReactGone).
			WithEphemeral(true))
		return
	}

	if err := event.Client().Rest.AddReaction(channelID, messageID,
		fmt.Sprintf("%s:%s", emoji.Name, emoji.ID)); err != nil {
		LogEmoji(MsgReactAddFail, err)
		_ = event.CreateMessage(discord.NewMessageCreate().
			WithContent(fmt.Sprintf(MsgReactFail, err)).
			WithEphemeral(true))
		return
	}

	registry.RecordUsage(emoji, event.User().ID, 1)
	noteExplicitSent(event.User().ID, emoji)
	_ = event.DeferUpdateMessage()
}
