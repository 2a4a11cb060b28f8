package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/forest-guardian/greenwatch/internal/properties"
)

const (
	colorRed    = 16711680
	colorGreen  = 65280
	colorOrange = 16753920
)

type DiscordMessage struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

type DiscordEmbed struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Color       int                 `json:"color"`
	Fields      []DiscordEmbedField `json:"fields,omitempty"`
}

type DiscordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Discord posts embeds to webhooks. A webhook with an empty URL is disabled.
type Discord struct {
	ErrorURL   string
	SuccessURL string
	AlertURL   string
	Client     *http.Client
}

func NewDiscord() *Discord {
	return &Discord{
		ErrorURL:   properties.DiscordErrorNotificationUrl(),
		SuccessURL: properties.DiscordSuccessNotificationUrl(),
		AlertURL:   properties.DiscordAlertNotificationUrl(),
		Client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *Discord) SendError(errorMessage string) error {
	return d.post(d.ErrorURL, DiscordEmbed{
		Title:       "🚨 Error Notification",
		Description: fmt.Sprintf("An error occurred: %s", errorMessage),
		Color:       colorRed,
	})
}

func (d *Discord) SendSuccess(successMessage string) error {
	return d.post(d.SuccessURL, DiscordEmbed{
		Title:       "✅ Success Notification",
		Description: successMessage,
		Color:       colorGreen,
	})
}

// SendAlert reports a flagged analysis.
func (d *Discord) SendAlert(title, description string, fields map[string]string) error {
	embed := DiscordEmbed{
		Title:       "🌳 " + title,
		Description: description,
		Color:       colorOrange,
	}
	for _, name := range sortedKeys(fields) {
		embed.Fields = append(embed.Fields, DiscordEmbedField{Name: name, Value: fields[name], Inline: true})
	}
	return d.post(d.AlertURL, embed)
}

func (d *Discord) post(url string, embed DiscordEmbed) error {
	if url == "" {
		return nil
	}

	payload, err := json.Marshal(DiscordMessage{Embeds: []DiscordEmbed{embed}})
	if err != nil {
		return err
	}

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Post(url, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to send Discord notification, status code: %d", resp.StatusCode)
	}

	return nil
}

func SendDiscordErrorNotification(errorMessage string) error {
	return NewDiscord().SendError(errorMessage)
}

func SendDiscordSuccessNotification(successMessage string) error {
	return NewDiscord().SendSuccess(successMessage)
}
