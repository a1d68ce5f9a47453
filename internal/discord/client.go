// Package discord adapts the chat platform session to the delivery and
// log-sink interfaces the rest of the bot consumes.
package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/DeLoWaN/openfront-discord-bot/internal/results"
	"github.com/DeLoWaN/openfront-discord-bot/pkg/logx"
)

// Client wraps a discordgo session. It implements results.Deliverer for
// match notifications and logx.Sender for the Discord log mirror.
type Client struct {
	session *discordgo.Session
	log     logx.Logger
}

func New(token string, log logx.Logger) (*Client, error) {
	if token == "" {
		return nil, errors.New("discord: empty token")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages
	return &Client{session: s, log: log}, nil
}

// Open connects the gateway session.
func (c *Client) Open() error {
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("discord: open session: %w", err)
	}
	c.log.Info("discord session opened")
	return nil
}

func (c *Client) Close() error {
	return c.session.Close()
}

// Session exposes the underlying session for command handlers.
func (c *Client) Session() *discordgo.Session {
	return c.session
}

// Deliver posts a notification embed to a channel. Destinations that no
// longer exist or are no longer writable report results.ErrTargetGone.
func (c *Client) Deliver(ctx context.Context, channelID string, msg results.Message) error {
	embed := &discordgo.MessageEmbed{
		Title:       msg.Title,
		Description: msg.Description,
		Color:       0xf1c40f,
	}
	for _, f := range msg.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  f.Name,
			Value: f.Value,
		})
	}
	_, err := c.session.ChannelMessageSendEmbed(channelID, embed, discordgo.WithContext(ctx))
	if err != nil {
		return classify(err)
	}
	return nil
}

// SendLog mirrors a log line into a channel as plain text.
func (c *Client) SendLog(ctx context.Context, channelID, text string) error {
	_, err := c.session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	if err != nil {
		return classify(err)
	}
	return nil
}

// classify separates "target no longer valid" REST answers from transient
// failures so callers can log them apart.
func classify(err error) error {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Message != nil {
		switch rest.Message.Code {
		case discordgo.ErrCodeUnknownChannel,
			discordgo.ErrCodeMissingAccess,
			discordgo.ErrCodeMissingPermissions:
			return fmt.Errorf("%w: %v", results.ErrTargetGone, err)
		}
	}
	return fmt.Errorf("discord: %w", err)
}
