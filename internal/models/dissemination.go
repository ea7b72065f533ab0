package models

import (
	"time"

	"github.com/google/uuid"
)

// Channel is a dissemination medium.
type Channel string

const (
	ChannelEmail         Channel = "Email"
	ChannelSocialPost    Channel = "SocialPost"
	ChannelChatBroadcast Channel = "ChatBroadcast"
	ChannelPush          Channel = "Push"
)

// Channels lists every supported channel.
var Channels = []Channel{ChannelEmail, ChannelSocialPost, ChannelChatBroadcast, ChannelPush}

// Valid reports whether c is a supported channel.
func (c Channel) Valid() bool {
	for _, known := range Channels {
		if c == known {
			return true
		}
	}
	return false
}

// DeliveryStatus is the three-state outcome of a channel attempt or a dispatch.
type DeliveryStatus string

const (
	StatusSuccess        DeliveryStatus = "Success"
	StatusPartialSuccess DeliveryStatus = "PartialSuccess"
	StatusFailed         DeliveryStatus = "Failed"
)

// Target is the resolved, channel-specific recipient set: email addresses,
// a page identifier, phone numbers, or a push topic / device tokens.
type Target struct {
	Group      string   `json:"group,omitempty"`
	Recipients []string `json:"recipients"`
}

// ChannelResult is what an adapter reports for one send.
type ChannelResult struct {
	Status DeliveryStatus `json:"status"`
	Detail string         `json:"detail"`
}

// ChannelRequest asks for a bulletin to go out on one channel to a named group.
type ChannelRequest struct {
	Channel Channel `json:"channel" binding:"required"`
	Group   string  `json:"group" binding:"required"`
}

// DisseminationRecord is the append-only audit row of one (bulletin, channel) attempt.
type DisseminationRecord struct {
	ID          uuid.UUID      `json:"id"`
	BulletinID  uuid.UUID      `json:"bulletin_id"`
	Channel     Channel        `json:"channel"`
	Status      DeliveryStatus `json:"status"`
	Details     string         `json:"details"`
	SentAt      time.Time      `json:"sent_at"`
	InitiatedBy string         `json:"initiated_by"`
}

// DisseminationSummary aggregates the per-channel records of one dispatch.
type DisseminationSummary struct {
	BulletinID    uuid.UUID             `json:"bulletin_id"`
	OverallStatus DeliveryStatus        `json:"overall_status"`
	Records       []DisseminationRecord `json:"records"`
}

// ChannelGroup is a named set of recipients for one channel.
type ChannelGroup struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name" binding:"required"`
	Channel    Channel   `json:"channel" binding:"required"`
	Recipients []string  `json:"recipients" binding:"required"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
