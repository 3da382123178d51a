package cache

import (
	"context"
	"time"
)

// Receipt is the carrier acknowledgement kept for a message whose status write is still outstanding.
type Receipt struct {
	RemoteMessageID string    `json:"remoteMessageId"`
	SentAt          time.Time `json:"sentAt"`
}

type DeliveryCache interface {
	StoreSent(ctx context.Context, messageID, remoteMessageID string, sentAt time.Time) error
	// LookupSent returns nil without error when no receipt exists.
	LookupSent(ctx context.Context, messageID string) (*Receipt, error)
	// Claim reports whether the caller now owns messageID for ttl.
	Claim(ctx context.Context, messageID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, messageID string) error
}
