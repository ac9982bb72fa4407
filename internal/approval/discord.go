package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/serenityjs/plugin-registry/internal/models"
)

const (
	promptTitle = "New Plugin Approval Request"
	promptColor = 0x8560E9
	promptBody  = "A new plugin was discovered and needs a review before it is listed.\n\n" +
		"Please check that:\n" +
		"- the repository contains a working plugin\n" +
		"- the plugin has at least one usable release\n" +
		"- the README describes what it does\n" +
		"- nothing in it is malicious"
)

// Discord posts approval prompts with Approve/Reject buttons to a channel and
// routes button clicks to a DecisionHandler.
type Discord struct {
	session   *discordgo.Session
	channelID string
	logger    *slog.Logger

	mu      sync.Mutex
	removeH func()
}

func NewDiscord(token, channelID string, logger *slog.Logger) (*Discord, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds
	if logger == nil {
		logger = slog.Default()
	}
	return &Discord{session: session, channelID: channelID, logger: logger}, nil
}

// Start opens the gateway connection and dispatches button clicks to h with ctx.
func (d *Discord) Start(ctx context.Context, h DecisionHandler) error {
	d.mu.Lock()
	d.removeH = d.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		d.handleInteraction(ctx, s, i, h)
	})
	d.mu.Unlock()

	if err := d.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	d.logger.Info("discord approval channel connected", "channel_id", d.channelID)
	return nil
}

func (d *Discord) Close() error {
	d.mu.Lock()
	if d.removeH != nil {
		d.removeH()
		d.removeH = nil
	}
	d.mu.Unlock()
	return d.session.Close()
}

func (d *Discord) NotifyPending(ctx context.Context, notice models.PendingNotice) error {
	if _, err := d.session.ChannelMessageSendComplex(d.channelID, BuildPrompt(notice), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send discord prompt for plugin %d: %w", notice.Plugin.ID, err)
	}
	return nil
}

// interactionReplier answers the reviewer who clicked a prompt button.
type interactionReplier interface {
	Reply(msg string)
	ClearButtons()
}

func (d *Discord) handleInteraction(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, h DecisionHandler) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	d.dispatch(ctx, i.MessageComponentData().CustomID, h, &sessionReplier{d: d, s: s, i: i})
}

// dispatch applies the decision encoded in customID. Every click gets exactly
// one reply: the ack on success, an error message otherwise.
func (d *Discord) dispatch(ctx context.Context, customID string, h DecisionHandler, r interactionReplier) {
	decision, err := ParseDecision(customID)
	if err != nil {
		d.logger.Warn("unrecognised approval button", "custom_id", customID, "error", err)
		r.Reply("This approval button is not recognised.")
		return
	}
	log := d.logger.With("plugin_id", decision.PluginID, "action", decision.Action)

	acked := false
	ack := func(msg string) {
		acked = true
		r.Reply(msg)
		r.ClearButtons()
	}

	err = h.OnDecision(ctx, decision, ack)
	if err != nil {
		log.Warn("approval decision failed", "error", err)
	}
	if acked {
		return
	}
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
	default:
		r.Reply(fmt.Sprintf("Could not %s plugin %d: %v", decision.Action, decision.PluginID, err))
	}
}

type sessionReplier struct {
	d *Discord
	s *discordgo.Session
	i *discordgo.InteractionCreate
}

func (r *sessionReplier) Reply(msg string) { r.d.reply(r.s, r.i, msg) }

func (r *sessionReplier) ClearButtons() { r.d.clearButtons(r.s, r.i) }

func (d *Discord) reply(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: msg},
	})
	if err != nil {
		d.logger.Warn("discord interaction reply failed", "error", err)
	}
}

// clearButtons strips the decision buttons so a prompt is answered once.
func (d *Discord) clearButtons(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Message == nil {
		return
	}
	empty := []discordgo.MessageComponent{}
	_, err := s.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:         i.Message.ID,
		Channel:    i.ChannelID,
		Components: &empty,
	})
	if err != nil {
		d.logger.Warn("discord prompt update failed", "error", err)
	}
}

// BuildPrompt renders the approval prompt for notice.
func BuildPrompt(notice models.PendingNotice) *discordgo.MessageSend {
	p := notice.Plugin
	embed := &discordgo.MessageEmbed{
		Title:       promptTitle,
		Description: promptBody,
		Color:       promptColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Name", Value: p.Name, Inline: true},
			{Name: "Owner", Value: fmt.Sprintf("[%s](%s)", p.Owner.Username, p.Owner.ProfileURL), Inline: true},
			{Name: "Repository", Value: p.URL},
		},
	}
	if notice.LogoURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: notice.LogoURL}
	}

	return &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    "Approve",
						Style:    discordgo.SuccessButton,
						CustomID: DecisionID(models.DecisionApprove, p.ID),
					},
					discordgo.Button{
						Label:    "Reject",
						Style:    discordgo.DangerButton,
						CustomID: DecisionID(models.DecisionReject, p.ID),
					},
				},
			},
		},
	}
}
