package discord

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	embedColor  = 0xBD983A
	footerIcon  = "https://universalis.app/favicon.png"
	authorName  = "Universalis Alert!"
	authorIcon  = "https://cdn.discordapp.com/emojis/474543539771015168.png"
	footerBrand = "universalis.app"
)

// WebhookPayload is the JSON body of a webhook execution.
type WebhookPayload struct {
	Embeds []Embed `json:"embeds"`
}

// Embed is a Discord rich embed.
type Embed struct {
	Title       string       `json:"title"`
	URL         string       `json:"url,omitempty"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
	Author      *EmbedAuthor `json:"author,omitempty"`
}

// EmbedFooter is the small text line under an embed.
type EmbedFooter struct {
	Text    string `json:"text"`
	IconURL string `json:"icon_url,omitempty"`
}

// EmbedAuthor is the header line above an embed title.
type EmbedAuthor struct {
	Name    string `json:"name"`
	IconURL string `json:"icon_url,omitempty"`
}

// AlertEmbed holds everything rendered into a notification.
type AlertEmbed struct {
	AlertName string
	ItemID    int32
	ItemName  string
	WorldName string
	Trigger   string
	Value     float32
}

// MarketURL builds the Universalis item page link for a world.
func MarketURL(baseURL string, itemID int32, worldName string) string {
	base := strings.TrimRight(baseURL, "/")
	return fmt.Sprintf("%s/market/%d?server=%s", base, itemID, url.QueryEscape(worldName))
}

// FormatValue renders an aggregated result without trailing zeros.
func FormatValue(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', -1, 32)
}

// Build renders the embed. link is the item page URL.
func (a AlertEmbed) Build(link string) Embed {
	var desc strings.Builder
	desc.WriteString("One of your alerts has been triggered for the following reason(s):\n")
	desc.WriteString("```c\n")
	desc.WriteString(a.Trigger)
	desc.WriteString("\n\nValue: ")
	desc.WriteString(FormatValue(a.Value))
	desc.WriteString("```\n")
	fmt.Fprintf(&desc, "You can view the item page on Universalis by clicking [this link](%s).", link)

	return Embed{
		Title:       fmt.Sprintf("Alert triggered for %s on %s", a.ItemName, a.WorldName),
		URL:         link,
		Description: desc.String(),
		Color:       embedColor,
		Footer: &EmbedFooter{
			Text:    fmt.Sprintf("%s | %s | All prices include GST", footerBrand, a.AlertName),
			IconURL: footerIcon,
		},
		Author: &EmbedAuthor{
			Name:    authorName,
			IconURL: authorIcon,
		},
	}
}
