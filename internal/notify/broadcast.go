package notify

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// BroadcastMessage is sent to every recipient. Photo takes precedence over Document,
// Text becomes the caption when either is set.
type BroadcastMessage struct {
	Text     string
	Photo    *Attachment
	Document *Attachment
}

// BroadcastResult counts deliveries.
type BroadcastResult struct {
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// Broadcast delivers msg to each recipient in order. Per-recipient failures are
// logged and counted, never returned.
func Broadcast(ctx context.Context, n Notifier, recipients []int64, msg BroadcastMessage) BroadcastResult {
	result := BroadcastResult{Total: len(recipients)}
	for _, to := range recipients {
		if ctx.Err() != nil {
			result.Failed += result.Total - result.Successful - result.Failed
			log.WithError(ctx.Err()).Warn("broadcast: cancelled")
			break
		}
		var err error
		switch {
		case msg.Photo != nil:
			err = n.SendPhoto(ctx, to, *msg.Photo, msg.Text)
		case msg.Document != nil:
			err = n.SendDocument(ctx, to, *msg.Document, msg.Text)
		default:
			err = n.SendText(ctx, to, msg.Text)
		}
		if err != nil {
			result.Failed++
			log.WithError(err).WithField("user_id", to).Warn("broadcast: delivery failed")
			continue
		}
		result.Successful++
	}
	return result
}
