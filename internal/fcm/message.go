package fcm

import (
	"fmt"

	"github.com/eternisai/push-relay/internal/config"
)

// Message is the FCM v1 message template shared by every destination of one
// request. Exactly one of Token or Topic is set right before sending.
type Message struct {
	Token        string            `json:"token,omitempty"`
	Topic        string            `json:"topic,omitempty"`
	Notification Notification      `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
	Android      *AndroidConfig    `json:"android,omitempty"`
	APNS         *APNSConfig       `json:"apns,omitempty"`
}

type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type AndroidConfig struct {
	Priority     string              `json:"priority,omitempty"`
	Notification AndroidNotification `json:"notification"`
}

type AndroidNotification struct {
	Icon      string `json:"icon,omitempty"`
	Color     string `json:"color,omitempty"`
	Sound     string `json:"sound,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
}

type APNSConfig struct {
	Headers map[string]string `json:"headers,omitempty"`
	Payload APNSPayload       `json:"payload"`
}

type APNSPayload struct {
	APS APS `json:"aps"`
}

type APS struct {
	Sound string `json:"sound,omitempty"`
	Badge int    `json:"badge,omitempty"`
}

// sendRequest is the body of POST /v1/projects/{project}/messages:send.
type sendRequest struct {
	Message *Message `json:"message"`
}

// BuildMessage assembles the message template. Data values are coerced to
// strings because FCM data payloads are string-only; numbers and booleans are
// stringified rather than rejected.
func BuildMessage(title, body string, data map[string]interface{}, hints config.DeliveryHints) *Message {
	msg := &Message{
		Notification: Notification{
			Title: title,
			Body:  body,
		},
		Android: &AndroidConfig{
			Priority: hints.Android.Priority,
			Notification: AndroidNotification{
				Icon:      hints.Android.Icon,
				Color:     hints.Android.Color,
				Sound:     hints.Android.Sound,
				ChannelID: hints.Android.ChannelID,
			},
		},
		APNS: &APNSConfig{
			Headers: map[string]string{
				"apns-priority": hints.APNS.Priority,
			},
			Payload: APNSPayload{
				APS: APS{
					Sound: hints.APNS.Sound,
					Badge: hints.APNS.Badge,
				},
			},
		},
	}

	if len(data) > 0 {
		msg.Data = make(map[string]string, len(data))
		for k, v := range data {
			msg.Data[k] = stringify(v)
		}
	}

	return msg
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; render integers without a decimal point
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

// forToken returns a copy of the template addressed to a single device token.
func (m *Message) forToken(token string) *Message {
	copy := *m
	copy.Token = token
	copy.Topic = ""
	return &copy
}

// forTopic returns a copy of the template addressed to a broadcast topic.
func (m *Message) forTopic(topic string) *Message {
	copy := *m
	copy.Topic = topic
	copy.Token = ""
	return &copy
}
