package chat

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zS1L3NT/go-telegram-dramaload/internal/models"
)

// PayloadKind discriminates callback payloads.
type PayloadKind byte

const (
	// KindAction selects an entry from a cached action list.
	KindAction PayloadKind = 'a'
	// KindSquare queues a grid cell index (or the submit sentinel 0).
	KindSquare PayloadKind = 's'
	// KindStop cancels a running session.
	KindStop PayloadKind = 'x'
)

// Payload is one decoded callback-query payload. Telegram limits callback
// data to 64 bytes, so the wire form is a terse comma-joined tuple.
type Payload struct {
	Kind  PayloadKind
	Key   models.SessionKey
	Value int // action index or queued square; unused for KindStop
}

// Encode renders the payload's wire form.
func (p Payload) Encode() string {
	switch p.Kind {
	case KindStop:
		return fmt.Sprintf("%c,%d,%d", p.Kind, p.Key.ChatID, p.Key.MessageID)
	default:
		return fmt.Sprintf("%c,%d,%d,%d", p.Kind, p.Key.ChatID, p.Key.MessageID, p.Value)
	}
}

// DecodePayload parses a callback payload.
func DecodePayload(data string) (Payload, error) {
	parts := strings.Split(data, ",")
	if len(parts) < 3 || len(parts[0]) != 1 {
		return Payload{}, fmt.Errorf("malformed payload %q", data)
	}

	var p Payload
	p.Kind = PayloadKind(parts[0][0])

	chatID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Payload{}, fmt.Errorf("malformed chat id in %q: %w", data, err)
	}
	messageID, err := strconv.Atoi(parts[2])
	if err != nil {
		return Payload{}, fmt.Errorf("malformed message id in %q: %w", data, err)
	}
	p.Key = models.SessionKey{ChatID: chatID, MessageID: messageID}

	switch p.Kind {
	case KindStop:
		if len(parts) != 3 {
			return Payload{}, fmt.Errorf("malformed stop payload %q", data)
		}
	case KindAction, KindSquare:
		if len(parts) != 4 {
			return Payload{}, fmt.Errorf("malformed payload %q", data)
		}
		v, err := strconv.Atoi(parts[3])
		if err != nil {
			return Payload{}, fmt.Errorf("malformed value in %q: %w", data, err)
		}
		p.Value = v
	default:
		return Payload{}, fmt.Errorf("unknown payload kind %q", parts[0])
	}

	return p, nil
}
