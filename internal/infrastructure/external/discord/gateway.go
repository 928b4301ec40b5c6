package discord

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/achievement-engine/engine/internal/domain/events"
	"github.com/achievement-engine/engine/internal/domain/shared"
)

// Dotted event types recognized by the evaluator registry. Named here
// (rather than in the domain package) since they describe Discord-specific
// gateway occurrences.
const (
	EventMessageSent    = "discord.message_sent"
	EventReactionAdded  = "discord.reaction_added"
	EventMemberJoined   = "discord.member_joined"
	EventVoiceJoined    = "discord.voice_joined"
	EventVoiceLeft      = "discord.voice_left"
	EventCommandInvoked = "discord.command_invoked"
)

// EventSink is the narrow interface the gateway needs to hand off an
// ingested occurrence. The trigger engine satisfies this via its Dispatch
// method; tests can substitute a fake.
type EventSink interface {
	Dispatch(ctx context.Context, record *events.EventRecord) error
}

// Gateway subscribes to discordgo session events and turns them into
// EventRecords persisted through a Repository, then handed to an EventSink.
type Gateway struct {
	client *Client
	repo   events.Repository
	sink   EventSink
	logger *slog.Logger
}

// NewGateway wires a Gateway against an already-constructed Client.
func NewGateway(client *Client, repo events.Repository, sink EventSink, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{client: client, repo: repo, sink: sink, logger: logger}
}

// Register attaches the gateway's handlers to the underlying session. Call
// before Client.Open.
func (g *Gateway) Register() {
	session := g.client.Session()
	session.AddHandler(g.onMessageCreate)
	session.AddHandler(g.onReactionAdd)
	session.AddHandler(g.onMemberAdd)
	session.AddHandler(g.onVoiceStateUpdate)
}

func (g *Gateway) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	g.ingest(EventMessageSent, m.Author.ID, m.GuildID, m.ChannelID, messageSentPayload{
		Length:    len(m.Content),
		HasAttach: len(m.Attachments) > 0,
	})
}

func (g *Gateway) onReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.Member == nil || r.Member.User == nil || r.Member.User.Bot {
		return
	}
	g.ingest(EventReactionAdded, r.Member.User.ID, r.GuildID, r.ChannelID, reactionPayload{
		Emoji:     r.Emoji.Name,
		MessageID: r.MessageID,
	})
}

func (g *Gateway) onMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.User == nil || m.User.Bot {
		return
	}
	g.ingest(EventMemberJoined, m.User.ID, m.GuildID, "", memberJoinedPayload{})
}

func (g *Gateway) onVoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if v.Member == nil || v.Member.User == nil || v.Member.User.Bot {
		return
	}
	eventType := EventVoiceJoined
	if v.ChannelID == "" {
		eventType = EventVoiceLeft
	}
	g.ingest(eventType, v.Member.User.ID, v.GuildID, v.ChannelID, voiceStatePayload{})
}

// IngestCommand records a slash-command invocation as an event. Called from
// the interaction-create handler wired up by the command router, which is
// outside this package's scope.
func (g *Gateway) IngestCommand(ctx context.Context, userID, guildID, channelID, commandName string) error {
	return g.ingest(EventCommandInvoked, userID, guildID, channelID, commandPayload{Name: commandName})
}

func (g *Gateway) ingest(eventType, discordUserID, discordGuildID, channelID string, payload interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(payload)
	if err != nil {
		g.logger.Error("marshal event payload", "event_type", eventType, "error", err)
		return err
	}

	record := events.NewEventRecord(shared.UserID(discordUserID), shared.GuildID(discordGuildID), eventType, data).
		WithChannel(channelID)

	stored, err := g.repo.RecordEvent(ctx, record)
	if err != nil {
		g.logger.Error("record event", "event_type", eventType, "error", err)
		return err
	}

	if err := g.sink.Dispatch(ctx, stored); err != nil {
		g.logger.Warn("dispatch event", "event_type", eventType, "error", err)
		return err
	}
	return nil
}

type messageSentPayload struct {
	Length    int  `json:"length"`
	HasAttach bool `json:"has_attachment"`
}

type reactionPayload struct {
	Emoji     string `json:"emoji"`
	MessageID string `json:"message_id"`
}

type memberJoinedPayload struct{}

type voiceStatePayload struct{}

type commandPayload struct {
	Name string `json:"name"`
}
