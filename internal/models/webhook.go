package models

// WebhookPayload is a Discord/Slack-compatible incoming webhook message
type WebhookPayload struct {
	Content   string         `json:"content,omitempty"`
	Username  string         `json:"username,omitempty"`
	AvatarURL string         `json:"avatar_url,omitempty"`
	Embeds    []WebhookEmbed `json:"embeds,omitempty"`
}

// WebhookEmbed represents a rich embed
type WebhookEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Fields      []WebhookEmbedField `json:"fields,omitempty"`
	Footer      *WebhookEmbedFooter `json:"footer,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
}

// WebhookEmbedField represents a field in an embed
type WebhookEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// WebhookEmbedFooter represents a footer in an embed
type WebhookEmbedFooter struct {
	Text    string `json:"text"`
	IconURL string `json:"icon_url,omitempty"`
}
