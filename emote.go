package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/disgoorg/snowflake/v2"
)

// ============================================================================
// Emoji Command Constants
// ============================================================================

const (
	MsgEmojiNotReady        = "Emojis are still loading, try again in a moment."
	MsgEmojiUnknownSub      = "Unknown emoji subcommand: %s"
	MsgEmojiGenericFail     = "Something went wrong. Try again later."
	MsgEmojiDeleteSuccess   = "Successful deletion of **%s**!"
	MsgEmojiRenameSuccess   = "Successfully renamed **%s** to **%s**."
	MsgEmojiFavSuccess      = "Added %s to your favourites."
	MsgEmojiUnfavSuccess    = "Removed %s from your favourites."
	MsgEmojiNotFav          = "%s is not in your favourites."
	MsgEmojiAddSuccess      = "Saved %s as **%s**!"
	MsgEmojiAddFetchFail    = "Could not download that attachment: %v"
	MsgEmojiDuplicateFound  = "That image already exists:\n%s"
	MsgEmojiView            = "**%s** %s\n**Added By:** %s\n**Created At:** <t:%d:d>\n**Used:** %d"
	MsgEmojiListEmpty       = "No emojis saved yet. Use /emoji add!"
	MsgEmojiSearchNoResults = "No emojis matched '%s'."
	MsgEmojiStealNone       = "No custom emoji found in that message!"
	MsgEmojiOwnerUnknown    = "the owner"
	MsgEmojiHandlerFail     = "Emoji command failed: %v"
	MsgEmojiSyncDone        = "Emoji sync complete."
	MsgEmojiCDNStatus       = "emoji CDN returned status %d"

	EmojiListPageSize = 15
	EmojiSyncInterval = time.Hour
)

// ===========================
// Command Registration
// ===========================

var registry *EmojiRegistry

func init() {
	OnClientReady(startEmojiRegistry)

	RegisterCommand(discord.SlashCommandCreate{
		Name:        "emoji",
		Description: "Manage your personal emojis",
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
			discord.InteractionContextTypeBotDM,
			discord.InteractionContextTypePrivateChannel,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "send",
				Description: "Send an emoji to this channel",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:         "emoji",
						Description:  "The emoji to send",
						Required:     true,
						Autocomplete: true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "view",
				Description: "View details of an emoji",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:         "emoji",
						Description:  "The emoji to view",
						Required:     true,
						Autocomplete: true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "list",
				Description: "List all emojis sorted by your usage",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "search",
				Description: "Search emojis by name",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "query",
						Description: "Name to search for",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "add",
				Description: "Save a new emoji from an image",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "name",
						Description: "Name for the new emoji (3-32 characters, no spaces)",
						Required:    true,
					},
					discord.ApplicationCommandOptionAttachment{
						Name:        "image",
						Description: "The emoji image (png, jpeg, gif or webp)",
						Required:    true,
					},
					discord.ApplicationCommandOptionBool{
						Name:        "allow_duplicate",
						Description: "Save even if a similar image already exists (default: false)",
						Required:    false,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "rename",
				Description: "Rename an emoji you own",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:         "emoji",
						Description:  "The emoji to rename",
						Required:     true,
						Autocomplete: true,
					},
					discord.ApplicationCommandOptionString{
						Name:        "new_name",
						Description: "The new name",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "delete",
				Description: "Delete an emoji you own",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:         "emoji",
						Description:  "The emoji to delete",
						Required:     true,
						Autocomplete: true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "favourite",
				Description: "Add an emoji to your favourites",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:         "emoji",
						Description:  "The emoji to favourite",
						Required:     true,
						Autocomplete: true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "unfavourite",
				Description: "Remove an emoji from your favourites",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:         "emoji",
						Description:  "The emoji to unfavourite",
						Required:     true,
						Autocomplete: true,
					},
				},
			},
		},
	}, handleEmoji)

	RegisterAutocompleteHandler("emoji", handleEmojiAutocomplete)

	RegisterCommand(discord.MessageCommandCreate{
		Name: "Steal Emoji",
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
			discord.InteractionContextTypeBotDM,
			discord.InteractionContextTypePrivateChannel,
		},
	}, handleStealEmoji)

	RegisterCommand(discord.SlashCommandCreate{
		Name:                     "syncemoji",
		Description:              "Force a reconcile against the application emoji list",
		DefaultMemberPermissions: omit.New(&adminPerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
	}, handleSyncEmoji)
}

var adminPerm = discord.PermissionAdministrator

func startEmojiRegistry(ctx context.Context, client bot.Client) {
	store := NewEmojiDB(DB)
	host := &discordEmojiHost{client: client}
	resolver := &discordUserResolver{client: client}
	registry = NewEmojiRegistry(NewPerceptualHasher(), NewUsageAccumulator(store), host, store, resolver)

	RegisterDaemon(LogRegistry, func(ctx context.Context) (bool, func(), func()) {
		LogRegistry(MsgRegistrySyncStart)
		if err := registry.Sync(ctx, client.ApplicationID); err != nil {
			LogRegistry(MsgRegistrySyncFail, err)
		}

		run := func() {
			ticker := time.NewTicker(EmojiSyncInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := registry.Sync(ctx, client.ApplicationID); err != nil {
						LogRegistry(MsgRegistrySyncFail, err)
					}
				case <-ctx.Done():
					return
				}
			}
		}
		return true, run, nil
	})
}

func handleSyncEmoji(event *events.ApplicationCommandInteractionCreate) {
	if registry == nil {
		_ = respondText(event, MsgEmojiNotReady, true)
		return
	}
	if err := event.DeferCreateMessage(true); err != nil {
		return
	}
	client := *event.Client()

	if err := registry.Sync(AppContext, client.ApplicationID); err != nil {
		LogRegistry(MsgRegistrySyncFail, err)
		editResponseText(client, event.ApplicationID(), event.Token(), MsgEmojiGenericFail)
		return
	}
	editResponseText(client, event.ApplicationID(), event.Token(), MsgEmojiSyncDone)
}

// ===========================
// Discord Host & Resolver
// ===========================

// discordEmojiHost implements EmojiHost on the application emoji REST
// endpoints plus the CDN for image bytes.
type discordEmojiHost struct {
	client bot.Client
}

func (h *discordEmojiHost) List(ctx context.Context) ([]RemoteEmoji, error) {
	emojis, err := h.client.Rest.GetApplicationEmojis(h.client.ApplicationID)
	if err != nil {
		return nil, err
	}
	remotes := make([]RemoteEmoji, 0, len(emojis))
	for _, e := range emojis {
		remotes = append(remotes, RemoteEmoji{ID: e.ID, Name: e.Name, Animated: e.Animated})
	}
	return remotes, nil
}

func (h *discordEmojiHost) Create(ctx context.Context, name string, image []byte) (RemoteEmoji, error) {
	iconType := discord.IconTypePNG
	if bytes.HasPrefix(image, []byte("GIF8")) {
		iconType = discord.IconTypeGIF
	}
	icon := discord.NewIconRaw(iconType, image)

	emoji, err := h.client.Rest.CreateApplicationEmoji(h.client.ApplicationID, discord.EmojiCreate{
		Name:  name,
		Image: *icon,
	})
	if err != nil {
		return RemoteEmoji{}, err
	}
	return RemoteEmoji{ID: emoji.ID, Name: emoji.Name, Animated: emoji.Animated}, nil
}

func (h *discordEmojiHost) Rename(ctx context.Context, id snowflake.ID, name string) (RemoteEmoji, error) {
	emoji, err := h.client.Rest.UpdateApplicationEmoji(h.client.ApplicationID, id, discord.EmojiUpdate{
		Name: &name,
	})
	if err != nil {
		return RemoteEmoji{}, err
	}
	return RemoteEmoji{ID: emoji.ID, Name: emoji.Name, Animated: emoji.Animated}, nil
}

func (h *discordEmojiHost) Delete(ctx context.Context, id snowflake.ID) error {
	return h.client.Rest.DeleteApplicationEmoji(h.client.ApplicationID, id)
}

func (h *discordEmojiHost) ReadBytes(ctx context.Context, id snowflake.ID, animated bool) ([]byte, error) {
	ext := "png"
	if animated {
		ext = "gif"
	}
	url := fmt.Sprintf("https://cdn.discordapp.com/emojis/%s.%s", id, ext)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := HttpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf(MsgEmojiCDNStatus, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// discordUserResolver implements UserResolver over the REST user fetch.
// The registry caches results, so a user is only fetched once.
type discordUserResolver struct {
	client bot.Client
}

func (r *discordUserResolver) ResolveUser(ctx context.Context, userID snowflake.ID) (string, error) {
	user, err := r.client.Rest.GetUser(userID)
	if err != nil {
		return "", err
	}
	return user.Username, nil
}

// ===========================
// Command Handlers
// ===========================

func handleEmoji(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	if data.SubCommandName == nil {
		return
	}
	if registry == nil {
		_ = respondText(event, MsgEmojiNotReady, true)
		return
	}

	subCmd := *data.SubCommandName
	switch subCmd {
	case "send":
		handleEmojiSend(event, data)
	case "view":
		handleEmojiView(event, data)
	case "list":
		handleEmojiList(event)
	case "search":
		handleEmojiSearch(event, data)
	case "add":
		handleEmojiAdd(event, data)
	case "rename":
		handleEmojiRename(event, data)
	case "delete":
		handleEmojiDelete(event, data)
	case "favourite":
		handleEmojiFavourite(event, data)
	case "unfavourite":
		handleEmojiUnfavourite(event, data)
	default:
		LogEmoji(MsgEmojiUnknownSub, subCmd)
	}
}

// respondUserError shows validation failures verbatim and hides
// dependency failures behind a generic message.
func respondUserError(event *events.ApplicationCommandInteractionCreate, err error) {
	switch e := err.(type) {
	case *ValidationError:
		_ = respondText(event, e.Message, true)
	case *DuplicateImageError:
		_ = respondText(event, fmt.Sprintf(MsgEmojiDuplicateFound, formatDuplicates(e.Matches)), true)
	default:
		LogError(MsgEmojiHandlerFail, err)
		_ = respondText(event, MsgEmojiGenericFail, true)
	}
}

func editUserError(client bot.Client, appID snowflake.ID, token string, err error) {
	switch e := err.(type) {
	case *ValidationError:
		editResponseText(client, appID, token, e.Message)
	case *DuplicateImageError:
		editResponseText(client, appID, token, fmt.Sprintf(MsgEmojiDuplicateFound, formatDuplicates(e.Matches)))
	default:
		LogError(MsgEmojiHandlerFail, err)
		editResponseText(client, appID, token, MsgEmojiGenericFail)
	}
}

func formatDuplicates(matches []DuplicateMatch) string {
	var sb strings.Builder
	for _, m := range matches {
		if e := registry.Get(m.ID); e != nil {
			fmt.Fprintf(&sb, "- %s (%s) distance %d\n", e.Mention(), e.Name, m.Distance)
		} else {
			fmt.Fprintf(&sb, "- %s distance %d\n", m.ID, m.Distance)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func handleEmojiSend(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	emoji, err := registry.Resolve(data.String("emoji"))
	if err != nil {
		respondUserError(event, err)
		return
	}

	if err := respondText(event, emoji.Mention(), false); err != nil {
		return
	}
	registry.RecordUsage(emoji, event.User().ID, 1)
	noteExplicitSent(event.User().ID, emoji)
}

func handleEmojiView(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	emoji, err := registry.Resolve(data.String("emoji"))
	if err != nil {
		respondUserError(event, err)
		return
	}

	userID := event.User().ID
	ownerName, err := registry.ResolveOwner(AppContext, emoji)
	if err != nil {
		ownerName = emoji.OwnerID.String()
	}
	used, err := registry.Usage().FetchTotal(AppContext, emoji.ID, userID)
	if err != nil {
		used = registry.Usage().Total(emoji.ID, userID)
	}

	_ = respondText(event, fmt.Sprintf(MsgEmojiView,
		emoji.Name, emoji.Mention(), ownerName, emoji.ID.Time().Unix(), used), true)
}

func handleEmojiList(event *events.ApplicationCommandInteractionCreate) {
	userID := event.User().ID
	_ = registry.Usage().WarmUser(AppContext, userID)

	emojis := registry.All()
	if len(emojis) == 0 {
		_ = respondText(event, MsgEmojiListEmpty, true)
		return
	}

	sort.SliceStable(emojis, func(i, j int) bool {
		return registry.Usage().Total(emojis[i].ID, userID) > registry.Usage().Total(emojis[j].ID, userID)
	})

	var sb strings.Builder
	for i, e := range emojis {
		if i >= EmojiListPageSize {
			fmt.Fprintf(&sb, "...and %d more", len(emojis)-i)
			break
		}
		fmt.Fprintf(&sb, "%s: %s [`%d`]\n", e.Mention(), e.Name, registry.Usage().Total(e.ID, userID))
	}
	_ = respondText(event, strings.TrimRight(sb.String(), "\n"), true)
}

func handleEmojiSearch(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	query := data.String("query")
	results := SearchEmojis(query, registry.All())
	if len(results) == 0 {
		_ = respondText(event, fmt.Sprintf(MsgEmojiSearchNoResults, query), true)
		return
	}

	var sb strings.Builder
	for i, e := range results {
		if i >= EmojiListPageSize {
			fmt.Fprintf(&sb, "...and %d more", len(results)-i)
			break
		}
		fmt.Fprintf(&sb, "%s: %s\n", e.Mention(), e.Name)
	}
	_ = respondText(event, strings.TrimRight(sb.String(), "\n"), true)
}

func handleEmojiAdd(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	name := strings.TrimSpace(data.String("name"))
	attachment := data.Attachment("image")
	allowDuplicate, _ := data.OptBool("allow_duplicate")

	if err := ValidateEmojiName(name); err != nil {
		respondUserError(event, err)
		return
	}

	if err := event.DeferCreateMessage(true); err != nil {
		return
	}
	client := *event.Client()
	appID := event.ApplicationID()
	token := event.Token()

	image, err := downloadBytes(AppContext, attachment.URL)
	if err != nil {
		editResponseText(client, appID, token, fmt.Sprintf(MsgEmojiAddFetchFail, err))
		return
	}

	emoji, err := registry.Create(AppContext, CreateOptions{
		Name:           name,
		Image:          image,
		OwnerID:        event.User().ID,
		AllowDuplicate: allowDuplicate,
		AutoRename:     true,
	})
	if err != nil {
		editUserError(client, appID, token, err)
		return
	}

	editResponseText(client, appID, token, fmt.Sprintf(MsgEmojiAddSuccess, emoji.Mention(), emoji.Name))
}

func canManage(emoji *PersonalEmoji, userID snowflake.ID) bool {
	if emoji.OwnerID == userID {
		return true
	}
	return GlobalConfig != nil && GlobalConfig.IsBotOwner(userID)
}

func requireManage(event *events.ApplicationCommandInteractionCreate, emoji *PersonalEmoji) bool {
	if canManage(emoji, event.User().ID) {
		return true
	}
	ownerName, err := registry.ResolveOwner(AppContext, emoji)
	if err != nil {
		ownerName = MsgEmojiOwnerUnknown
	}
	_ = respondText(event, fmt.Sprintf(ErrNotOwner, ownerName), true)
	return false
}

func handleEmojiRename(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	emoji, err := registry.Resolve(data.String("emoji"))
	if err != nil {
		respondUserError(event, err)
		return
	}
	if !requireManage(event, emoji) {
		return
	}

	oldName := emoji.Name
	newName := data.String("new_name")
	if err := registry.Rename(AppContext, emoji, newName); err != nil {
		respondUserError(event, err)
		return
	}
	_ = respondText(event, fmt.Sprintf(MsgEmojiRenameSuccess, oldName, emoji.Name), true)
}

func handleEmojiDelete(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	emoji, err := registry.Resolve(data.String("emoji"))
	if err != nil {
		respondUserError(event, err)
		return
	}
	if !requireManage(event, emoji) {
		return
	}

	if err := registry.Delete(AppContext, emoji); err != nil {
		respondUserError(event, err)
		return
	}
	_ = respondText(event, fmt.Sprintf(MsgEmojiDeleteSuccess, emoji.Name), true)
}

func handleEmojiFavourite(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	emoji, err := registry.Resolve(data.String("emoji"))
	if err != nil {
		respondUserError(event, err)
		return
	}

	if err := registry.Favourite(AppContext, emoji, event.User().ID); err != nil {
		respondUserError(event, err)
		return
	}
	_ = respondText(event, fmt.Sprintf(MsgEmojiFavSuccess, emoji.Mention()), true)
}

func handleEmojiUnfavourite(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	emoji, err := registry.Resolve(data.String("emoji"))
	if err != nil {
		respondUserError(event, err)
		return
	}

	userID := event.User().ID
	_ = registry.WarmFavourites(AppContext, userID)
	if !emoji.IsFavourite(userID) {
		_ = respondText(event, fmt.Sprintf(MsgEmojiNotFav, emoji.Mention()), true)
		return
	}

	if err := registry.Unfavourite(AppContext, emoji, userID); err != nil {
		respondUserError(event, err)
		return
	}
	_ = respondText(event, fmt.Sprintf(MsgEmojiUnfavSuccess, emoji.Mention()), true)
}

// ===========================
// Autocomplete
// ===========================

func handleEmojiAutocomplete(event *events.AutocompleteInteractionCreate) {
	if registry == nil {
		_ = event.AutocompleteResult(nil)
		return
	}

	data := event.Data
	userID := event.User().ID
	subCmd := ""
	if data.SubCommandName != nil {
		subCmd = *data.SubCommandName
	}

	// Usage totals drive the empty-query ordering.
	_ = registry.Usage().WarmUser(AppContext, userID)

	source := registry.All()
	switch subCmd {
	case "rename", "delete":
		if GlobalConfig == nil || !GlobalConfig.IsBotOwner(userID) {
			source = filterEmojis(source, func(e *PersonalEmoji) bool { return e.OwnerID == userID })
		}
	case "unfavourite":
		_ = registry.WarmFavourites(AppContext, userID)
		source = filterEmojis(source, func(e *PersonalEmoji) bool { return e.IsFavourite(userID) })
	}

	query := strings.TrimSpace(data.String("emoji"))
	if query == "" {
		sort.SliceStable(source, func(i, j int) bool {
			return registry.Usage().Total(source[i].ID, userID) > registry.Usage().Total(source[j].ID, userID)
		})
	} else {
		source = SearchEmojis(query, source)
	}

	var choices []discord.AutocompleteChoice
	for _, e := range source {
		choices = append(choices, discord.AutocompleteChoiceString{
			Name:  e.Name,
			Value: e.ID.String(),
		})
		if len(choices) >= AutocompleteLimit {
			break
		}
	}
	_ = event.AutocompleteResult(choices)
}

func filterEmojis(emojis []*PersonalEmoji, keep func(*PersonalEmoji) bool) []*PersonalEmoji {
	var out []*PersonalEmoji
	for _, e := range emojis {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// ===========================
// Steal Emoji
// ===========================

func handleStealEmoji(event *events.ApplicationCommandInteractionCreate) {
	if registry == nil {
		_ = respondText(event, MsgEmojiNotReady, true)
		return
	}

	data := event.MessageCommandInteractionData()
	message := data.TargetMessage()
	mentions := FindEmojiMentions(message.Content)
	if len(mentions) == 0 {
		_ = respondText(event, MsgEmojiStealNone, true)
		return
	}

	if err := event.DeferCreateMessage(true); err != nil {
		return
	}
	client := *event.Client()
	appID := event.ApplicationID()
	token := event.Token()
	userID := event.User().ID

	host := &discordEmojiHost{client: client}
	var sb strings.Builder
	for _, mention := range mentions {
		image, err := host.ReadBytes(AppContext, mention.ID, mention.Animated)
		if err != nil {
			fmt.Fprintf(&sb, "**%s**: %s\n", mention.Name, fmt.Sprintf(ErrReadImageFail, err))
			continue
		}

		emoji, err := registry.Create(AppContext, CreateOptions{
			Name:       mention.Name,
			Image:      image,
			OwnerID:    userID,
			AutoRename: true,
		})
		if err != nil {
			if dup, ok := err.(*DuplicateImageError); ok {
				fmt.Fprintf(&sb, "**%s** duplicates:\n%s\n", mention.Name, formatDuplicates(dup.Matches))
			} else if ue, ok := err.(*ValidationError); ok {
				fmt.Fprintf(&sb, "**%s**: %s\n", mention.Name, ue.Message)
			} else {
				LogError(MsgEmojiHandlerFail, err)
				fmt.Fprintf(&sb, "**%s**: failed to save\n", mention.Name)
			}
			continue
		}
		fmt.Fprintf(&sb, "Saved %s as **%s**\n", emoji.Mention(), emoji.Name)
	}

	editResponseText(client, appID, token, strings.TrimRight(sb.String(), "\n"))
}

func downloadBytes(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := HttpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf(MsgEmojiCDNStatus, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
