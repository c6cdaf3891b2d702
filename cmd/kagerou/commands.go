// cmd/kagerou/commands.go
package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// RegisterCommands registers the slash commands with Discord.
func RegisterCommands(s *discordgo.Session, appID, guildID string) error {
	commands := []*discordgo.ApplicationCommand{
		{
			Name:        "watch",
			Description: "Manage watched accounts",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name:        "add",
					Description: "Start watching an account",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "handle",
							Description: "Account handle (with or without @)",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionChannel,
							Name:        "channel",
							Description: "Channel to relay posts to (defaults to this channel)",
							Required:    false,
						},
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "interval",
							Description: "Poll interval in seconds",
							Required:    false,
						},
						{
							Type:        discordgo.ApplicationCommandOptionBoolean,
							Name:        "backfill",
							Description: "Deliver existing posts on the first poll",
							Required:    false,
						},
					},
				},
				{
					Name:        "remove",
					Description: "Stop watching an account",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "handle",
							Description: "Account handle",
							Required:    true,
						},
					},
				},
				{
					Name:        "list",
					Description: "List watched accounts",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
				},
			},
		},
		{Name: "status", Description: "Show bot status"},
		{Name: "pause", Description: "Pause all polling"},
		{Name: "resume", Description: "Resume polling"},
	}

	for _, cmd := range commands {
		if _, err := s.ApplicationCommandCreate(appID, guildID, cmd); err != nil {
			return NewError(ErrorTypeDiscord, ErrCodeSinkSend,
				fmt.Sprintf("failed to register /%s", cmd.Name), err)
		}
	}
	return nil
}

// handleInteraction dispatches slash command interactions.
func handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	switch i.ApplicationCommandData().Name {
	case "watch":
		handleWatchCommand(s, i)
	case "status":
		handleStatusCommand(s, i)
	case "pause":
		SetPaused(true)
		respond(s, i, "Polling paused.")
	case "resume":
		SetPaused(false)
		respond(s, i, "Polling resumed.")
	default:
		respondEphemeral(s, i, "Unknown command.")
	}
}

func handleWatchCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	options := i.ApplicationCommandData().Options
	if len(options) == 0 {
		respondEphemeral(s, i, "Missing watch subcommand.")
		return
	}

	switch options[0].Name {
	case "add":
		handleWatchAdd(s, i, options[0].Options)
	case "remove":
		handleWatchRemove(s, i, options[0].Options)
	case "list":
		handleWatchList(s, i)
	default:
		respondEphemeral(s, i, "Unknown watch subcommand.")
	}
}

func handleWatchAdd(s *discordgo.Session, i *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	subject := Subject{ChannelID: i.ChannelID}
	for _, opt := range options {
		switch opt.Name {
		case "handle":
			subject.Handle = opt.StringValue()
		case "channel":
			subject.ChannelID = opt.ChannelValue(s).ID
		case "interval":
			subject.IntervalSecs = int(opt.IntValue())
		case "backfill":
			if opt.BoolValue() {
				subject.FirstPoll = DeliverBacklogOnFirstPoll
			}
		}
	}

	if err := registry.Add(subject); err != nil {
		respondEphemeral(s, i, fmt.Sprintf("Could not add subject: %v", err))
		return
	}
	respond(s, i, fmt.Sprintf("Now watching @%s in <#%s> every %s.",
		normalizeHandle(subject.Handle), subject.ChannelID, subject.Interval()))
}

func handleWatchRemove(s *discordgo.Session, i *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	var handle string
	for _, opt := range options {
		if opt.Name == "handle" {
			handle = opt.StringValue()
		}
	}
	if handle == "" {
		respondEphemeral(s, i, "Handle is required.")
		return
	}

	if err := registry.Remove(handle); err != nil {
		respondEphemeral(s, i, fmt.Sprintf("Could not remove subject: %v", err))
		return
	}
	respond(s, i, fmt.Sprintf("Stopped watching @%s.", normalizeHandle(handle)))
}

func handleWatchList(s *discordgo.Session, i *discordgo.InteractionCreate) {
	subjects := registry.List()
	if len(subjects) == 0 {
		respond(s, i, "No accounts are being watched.")
		return
	}

	var b strings.Builder
	for _, sub := range subjects {
		status := ""
		if sub.Paused {
			status = " (paused)"
		}
		fmt.Fprintf(&b, "• @%s → <#%s> every %s%s\n", sub.Handle, sub.ChannelID, sub.Interval(), status)
	}
	respond(s, i, b.String())
}

func handleStatusCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	st := GetState()
	uptime := time.Since(st.StartupTime).Round(time.Second)

	embed := &discordgo.MessageEmbed{
		Title: "Kagerou Status",
		Color: embedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Uptime", Value: uptime.String(), Inline: true},
			{Name: "Version", Value: VERSION, Inline: true},
			{Name: "Paused", Value: fmt.Sprintf("%t", st.Paused), Inline: true},
			{Name: "Watched", Value: fmt.Sprintf("%d", len(registry.List())), Inline: true},
			{Name: "Ticks", Value: fmt.Sprintf("%d", st.TickCount), Inline: true},
			{Name: "Delivered", Value: fmt.Sprintf("%d", st.DeliveredItems), Inline: true},
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if st.LastError != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Last error", Value: truncate(st.LastError, 256),
		})
	}

	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	})
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	})
}

func respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}
