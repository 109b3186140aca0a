package models

// Outbound is a message the automation core asks the transport to deliver.
// Options, when set, are rendered as reply buttons (up to 3) or a list.
type Outbound struct {
	Phone    string   `json:"phone"`
	Text     string   `json:"text"`
	Link     string   `json:"link,omitempty"`
	FileType string   `json:"file_type,omitempty"`
	Options  []string `json:"options,omitempty"`
}
