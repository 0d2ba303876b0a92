package models

import "time"

// Message is an immutable persisted communication unit. The stored row keeps
// bare sender/recipient ids; Sender and Recipient are expanded to public
// profiles when messages are read back.
//
// Text and FileURL are independent: either may be present. Creation-time
// validation (at least one of the two) happens at the API boundary, not here.
type Message struct {
	ID        string     `json:"id"`
	Sender    PublicUser `json:"sender"`
	Recipient PublicUser `json:"recipient"`
	Text      string     `json:"text,omitempty"`
	FileURL   string     `json:"fileUrl,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}
