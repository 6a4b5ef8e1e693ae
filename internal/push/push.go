package push

import (
	"encoding/json"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/chatspace/chatspace/internal/models"
	"github.com/chatspace/chatspace/internal/store"
	"github.com/chatspace/chatspace/pkg/logger"
)

// Notifier sends Web Push notifications to users with no live socket.
type Notifier struct {
	store           store.Store
	vapidPublicKey  string
	vapidPrivateKey string
	subject         string
}

// NewNotifier creates a push Notifier. Returns nil if VAPID keys are
// empty, which disables push entirely; callers must nil-check.
func NewNotifier(st store.Store, vapidPublicKey, vapidPrivateKey, subject string) *Notifier {
	if vapidPublicKey == "" || vapidPrivateKey == "" {
		return nil
	}
	return &Notifier{
		store:           st,
		vapidPublicKey:  vapidPublicKey,
		vapidPrivateKey: vapidPrivateKey,
		subject:         subject,
	}
}

// PublicKey exposes the VAPID public key for client subscription.
func (n *Notifier) PublicKey() string {
	return n.vapidPublicKey
}

type notificationPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag"`
	URL   string `json:"url,omitempty"`
}

// NotifyMessage pushes a new-message notification to every subscription
// of the receiver. The message id doubles as the notification tag so
// client-side display stays deduplicated.
func (n *Notifier) NotifyMessage(msg *models.Message) {
	body := msg.Content
	if msg.Type != models.MessageText {
		body = "sent a " + msg.Type
	}

	payload, err := json.Marshal(notificationPayload{
		Title: msg.Sender.Username,
		Body:  body,
		Tag:   msg.ID,
	})
	if err != nil {
		return
	}

	subs, err := n.store.PushSubscriptionsByUser(msg.ReceiverID)
	if err != nil {
		logger.Error().Err(err).Str("user_id", msg.ReceiverID).Msg("failed to load push subscriptions")
		return
	}

	for _, sub := range subs {
		n.send(sub, payload)
	}
}

func (n *Notifier) send(sub *models.PushSubscription, payload []byte) {
	resp, err := webpush.SendNotification(payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.KeyP256dh,
			Auth:   sub.KeyAuth,
		},
	}, &webpush.Options{
		Subscriber:      n.subject,
		VAPIDPublicKey:  n.vapidPublicKey,
		VAPIDPrivateKey: n.vapidPrivateKey,
		TTL:             60,
	})
	if err != nil {
		logger.Warn().Err(err).Str("endpoint", sub.Endpoint).Msg("push send failed")
		return
	}
	defer resp.Body.Close()

	// The push service reports expired or unsubscribed endpoints; drop
	// them so we stop retrying.
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		if err := n.store.DeletePushSubscription(sub.ID); err != nil {
			logger.Warn().Err(err).Str("subscription_id", sub.ID).Msg("failed to prune push subscription")
		}
	}
}
