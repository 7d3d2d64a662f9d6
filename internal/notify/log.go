package notify

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// LogNotifier writes outgoing messages to the log. It is used when no delivery
// endpoint is configured.
type LogNotifier struct{}

func (LogNotifier) SendText(_ context.Context, to int64, text string, _ ...[]Button) error {
	log.WithFields(log.Fields{"user_id": to, "kind": "text"}).Info(text)
	return nil
}

func (LogNotifier) SendPhoto(_ context.Context, to int64, photo Attachment, caption string, _ ...[]Button) error {
	log.WithFields(log.Fields{"user_id": to, "kind": "photo", "name": photo.Name, "size": len(photo.Data)}).Info(caption)
	return nil
}

func (LogNotifier) SendDocument(_ context.Context, to int64, doc Attachment, caption string) error {
	log.WithFields(log.Fields{"user_id": to, "kind": "document", "name": doc.Name, "size": len(doc.Data)}).Info(caption)
	return nil
}
