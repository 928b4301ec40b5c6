// Package discord implements the Discord gateway/REST wrapper that the
// achievement engine uses both as a notification.NotificationChannel and as
// an event source feeding the trigger engine.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/achievement-engine/engine/internal/domain/notification"
	"github.com/achievement-engine/engine/pkg/circuitbreaker"
	"github.com/achievement-engine/engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the Discord client.
type ClientConfig struct {
	// Token is the bot token (without the "Bot " prefix, discordgo adds it).
	Token string

	// RetryAttempts is the number of retry attempts for failed sends.
	RetryAttempts int

	// RetryDelay is the initial delay between retries.
	RetryDelay time.Duration

	Logger *slog.Logger
	Debug  bool
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(token string) ClientConfig {
	return ClientConfig{
		Token:         token,
		RetryAttempts: 3,
		RetryDelay:    1 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client wraps a discordgo.Session and implements notification.NotificationChannel
// for both direct messages and guild announcement posts.
type Client struct {
	config  ClientConfig
	session *discordgo.Session
	logger  *slog.Logger

	channelType notification.ChannelType

	// announcementChannels maps a guild ID to its configured announcement
	// channel, refreshed by the caller via SetAnnouncementChannel.
	announcementChannels map[string]string

	// breaker trips after a run of consecutive send failures so a Discord
	// outage degrades into fast ErrCircuitOpen failures instead of every
	// caller paying the full retry backoff against a dead endpoint.
	breaker *circuitbreaker.CircuitBreaker
}

// NewClient creates a Discord client for the given channel type, with its
// own discordgo.Session. cmd/engine builds one Client under
// ChannelTypeDirectMessage and a second under ChannelTypeGuildAnnouncement.
func NewClient(config ClientConfig, channelType notification.ChannelType) (*Client, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	session, err := discordgo.New("Bot " + config.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildVoiceStates

	return &Client{
		config:               config,
		session:              session,
		logger:               config.Logger,
		channelType:          channelType,
		announcementChannels: make(map[string]string),
		breaker: circuitbreaker.DiscordAPIBreaker(func(name string, from, to circuitbreaker.State) {
			config.Logger.Warn("discord circuit breaker state change", "breaker", name, "from", from, "to", to)
		}),
	}, nil
}

// Session returns the underlying discordgo session, for gateway ingestion.
func (c *Client) Session() *discordgo.Session {
	return c.session
}

// Open connects to the Discord gateway.
func (c *Client) Open() error {
	return c.session.Open()
}

// Close disconnects from the Discord gateway.
func (c *Client) Close() error {
	return c.session.Close()
}

// SetAnnouncementChannel records the channel a guild's awards should post to.
func (c *Client) SetAnnouncementChannel(guildID, channelID string) {
	c.announcementChannels[guildID] = channelID
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION CHANNEL IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// Type returns the channel type this Client was configured for.
func (c *Client) Type() notification.ChannelType {
	return c.channelType
}

// Send implements notification.NotificationChannel.
func (c *Client) Send(ctx context.Context, n *notification.Notification, opts notification.DeliveryOptions) notification.DeliveryResult {
	if !c.SupportsRecipient(n) {
		return notification.NewFailureResult(c.channelType, notification.ErrUnsupportedRecipient, false)
	}

	target, err := c.resolveTarget(n)
	if err != nil {
		return notification.NewFailureResult(c.channelType, err, false)
	}

	embed := &discordgo.MessageEmbed{
		Title:       n.Title,
		Description: n.Message,
		Color:       opts.EmbedColor,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	send := &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: buildComponents(opts.ComponentRows),
	}

	msg, sendErr := c.sendWithRetry(ctx, target, send)
	if sendErr != nil {
		retryable := isRetryableError(sendErr)
		result := notification.NewFailureResult(c.channelType, sendErr, retryable)
		if isRecipientBlocked(sendErr) {
			result.Error = notification.ErrRecipientBlocked
			result.Retryable = false
		}
		return result
	}

	return notification.NewSuccessResult(c.channelType, msg.ID)
}

// SendBatch implements notification.NotificationChannel by rendering every
// notification in the batch as one embed field inside a single digest message.
func (c *Client) SendBatch(ctx context.Context, batch *notification.NotificationBatch, opts notification.DeliveryOptions) notification.DeliveryResult {
	if len(batch.Notifications) == 0 {
		return notification.NewSuccessResult(c.channelType, "")
	}

	target, err := c.resolveTargetForRecipient(batch.RecipientID, batch.GuildID)
	if err != nil {
		return notification.NewFailureResult(c.channelType, err, false)
	}

	fields := make([]*discordgo.MessageEmbedField, 0, len(batch.Notifications))
	for _, n := range batch.Notifications {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  n.Title,
			Value: n.Message,
		})
	}

	embed := &discordgo.MessageEmbed{
		Title:     "Digest",
		Color:     opts.EmbedColor,
		Fields:    fields,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	msg, sendErr := c.sendWithRetry(ctx, target, &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}})
	if sendErr != nil {
		return notification.NewFailureResult(c.channelType, sendErr, isRetryableError(sendErr))
	}
	return notification.NewSuccessResult(c.channelType, msg.ID)
}

// IsAvailable reports whether the gateway session is open.
func (c *Client) IsAvailable(ctx context.Context) bool {
	return c.session.DataReady
}

// SupportsRecipient reports whether this channel can reach the notification's
// recipient: a DM channel needs a recipient user ID, an announcement channel
// needs a configured guild channel.
func (c *Client) SupportsRecipient(n *notification.Notification) bool {
	switch c.channelType {
	case notification.ChannelTypeDirectMessage:
		return n.RecipientID.IsValid()
	case notification.ChannelTypeGuildAnnouncement:
		_, ok := c.announcementChannels[n.GuildID]
		return ok
	default:
		return false
	}
}

// resolveTarget returns the channel ID to post to for a given notification.
func (c *Client) resolveTarget(n *notification.Notification) (string, error) {
	return c.resolveTargetForRecipient(n.RecipientID, n.GuildID)
}

func (c *Client) resolveTargetForRecipient(recipientID notification.RecipientID, guildID string) (string, error) {
	switch c.channelType {
	case notification.ChannelTypeDirectMessage:
		dmChannel, err := c.session.UserChannelCreate(string(recipientID))
		if err != nil {
			return "", fmt.Errorf("open dm channel: %w", err)
		}
		return dmChannel.ID, nil
	case notification.ChannelTypeGuildAnnouncement:
		channelID, ok := c.announcementChannels[guildID]
		if !ok {
			return "", notification.ErrChannelNotConfigured
		}
		return channelID, nil
	default:
		return "", notification.ErrChannelNotFound
	}
}

func (c *Client) sendWithRetry(ctx context.Context, channelID string, send *discordgo.MessageSend) (*discordgo.Message, error) {
	var msg *discordgo.Message
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var sendErr error
		msg, sendErr = retry.DoWithData(ctx, func(ctx context.Context) (*discordgo.Message, error) {
			m, err := c.session.ChannelMessageSendComplex(channelID, send, discordgo.WithContext(ctx))
			if err != nil {
				return nil, err
			}
			return m, nil
		}, retry.WithMaxAttempts(c.config.RetryAttempts+1), retry.WithInitialDelay(c.config.RetryDelay),
			retry.WithMaxDelay(10*time.Second), retry.WithRetryIf(isRetryableError))
		return sendErr
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func buildComponents(rows [][]notification.ActionButton) []discordgo.MessageComponent {
	if len(rows) == 0 {
		return nil
	}
	components := make([]discordgo.MessageComponent, 0, len(rows))
	for _, row := range rows {
		buttons := make([]discordgo.MessageComponent, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, discordgo.Button{
					Label: b.Label,
					Style: discordgo.LinkButton,
					URL:   b.URL,
				})
				continue
			}
			buttons = append(buttons, discordgo.Button{
				Label:    b.Label,
				Style:    discordgo.SecondaryButton,
				CustomID: b.CustomID,
			})
		}
		components = append(components, discordgo.ActionsRow{Components: buttons})
	}
	return components
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return true
	}
	var restErr *discordgo.RESTError
	if ok := asRESTError(err, &restErr); ok {
		if restErr.Response != nil && restErr.Response.StatusCode == 429 {
			return true
		}
		if restErr.Response != nil && restErr.Response.StatusCode >= 500 {
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "temporary") || strings.Contains(msg, "reset")
}

func isRecipientBlocked(err error) bool {
	var restErr *discordgo.RESTError
	if ok := asRESTError(err, &restErr); ok && restErr.Response != nil {
		return restErr.Response.StatusCode == 403
	}
	return false
}

func asRESTError(err error, target **discordgo.RESTError) bool {
	if restErr, ok := err.(*discordgo.RESTError); ok {
		*target = restErr
		return true
	}
	return false
}
