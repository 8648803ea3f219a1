package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/seasondb/internal/domain"
)

// DiscordService implements NotificationService for Discord webhooks
type DiscordService struct {
	log        zerolog.Logger
	webhookURL string
	httpClient *http.Client
}

// NewDiscordService creates a new Discord notification service
func NewDiscordService(log zerolog.Logger, webhookURL string) *DiscordService {
	return &DiscordService{
		log:        log.With().Str("module", "notification").Str("type", "discord").Logger(),
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SendSuccess sends a success notification with statistics
func (s *DiscordService) SendSuccess(ctx context.Context, stats domain.Statistics) error {
	if s.webhookURL == "" {
		return nil // No webhook configured, skip silently
	}

	color := 0x00ff00 // Green
	if stats.PeriodsFailed > 0 || stats.ItemFailures > 0 {
		color = 0xffa500 // Orange
	}

	embed := discordEmbed{
		Title:       "SeasonDB Run Completed",
		Description: "Season datasets regenerated",
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields: []discordField{
			{
				Name:   "Periods",
				Value:  fmt.Sprintf("%d generated, %d empty, %d skipped, %d failed", stats.PeriodsGenerated, stats.PeriodsEmpty, stats.PeriodsSkipped, stats.PeriodsFailed),
				Inline: false,
			},
			{
				Name:   "Records",
				Value:  fmt.Sprintf("%d", stats.Records),
				Inline: true,
			},
			{
				Name:   "Item Failures",
				Value:  fmt.Sprintf("%d", stats.ItemFailures),
				Inline: true,
			},
			{
				Name:   "Covers",
				Value:  fmt.Sprintf("%d uploaded, %d cached, %d fallback", stats.Uploads, stats.CacheHits, stats.Fallbacks),
				Inline: false,
			},
			{
				Name:   "Evictions",
				Value:  fmt.Sprintf("%d", stats.Evictions),
				Inline: true,
			},
			{
				Name:   "Duration",
				Value:  stats.Duration.Round(time.Second).String(),
				Inline: true,
			},
		},
	}

	payload := discordWebhook{
		Embeds: []discordEmbed{embed},
	}

	return s.sendWebhook(ctx, payload)
}

// SendPeriodFailure reports a failed or aborted period
func (s *DiscordService) SendPeriodFailure(ctx context.Context, failure domain.PeriodFailure) error {
	if s.webhookURL == "" {
		return nil
	}

	title := "SeasonDB Period Failed"
	if failure.Status == domain.RunStatusAborted {
		title = "SeasonDB Period Aborted"
	}
	reason := failure.Reason
	if reason == "" {
		reason = "unknown"
	}

	fields := []discordField{
		{Name: "Period", Value: failure.Period, Inline: true},
		{Name: "Status", Value: string(failure.Status), Inline: true},
		{Name: "Reason", Value: reason, Inline: false},
	}
	if failure.Err != nil {
		fields = append(fields, discordField{Name: "Error", Value: fmt.Sprintf("```%s```", failure.Err.Error()), Inline: false})
	}

	embed := discordEmbed{
		Title:     title,
		Color:     0xff0000, // Red
		Timestamp: time.Now().Format(time.RFC3339),
		Fields:    fields,
	}

	return s.sendWebhook(ctx, discordWebhook{Embeds: []discordEmbed{embed}})
}

// SendError sends an error notification with error details
func (s *DiscordService) SendError(ctx context.Context, err error) error {
	if s.webhookURL == "" {
		return nil // No webhook configured, skip silently
	}

	embed := discordEmbed{
		Title:       "SeasonDB Run Failed",
		Description: fmt.Sprintf("Dataset generation failed with error:\n```%s```", err.Error()),
		Color:       0xff0000, // Red
		Timestamp:   time.Now().Format(time.RFC3339),
	}

	payload := discordWebhook{
		Embeds: []discordEmbed{embed},
	}

	return s.sendWebhook(ctx, payload)
}

// sendWebhook sends a webhook payload to Discord
func (s *DiscordService) sendWebhook(ctx context.Context, payload discordWebhook) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal webhook payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return errors.Wrap(err, "failed to create webhook request")
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send webhook request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook request failed with status %d", resp.StatusCode)
	}

	s.log.Debug().Msg("Discord notification sent successfully")
	return nil
}

// discordWebhook represents a Discord webhook payload
type discordWebhook struct {
	Embeds []discordEmbed `json:"embeds"`
}

// discordEmbed represents a Discord embed
type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Fields      []discordField `json:"fields,omitempty"`
}

// discordField represents a Discord embed field
type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

