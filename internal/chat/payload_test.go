package chat

import (
	"testing"

	"github.com/zS1L3NT/go-telegram-dramaload/internal/models"
)

func TestPayloadRoundTrip(t *testing.T) {
	key := models.SessionKey{ChatID: 123456789, MessageID: 42}

	cases := []struct {
		name string
		p    Payload
		wire string
	}{
		{"action", Payload{Kind: KindAction, Key: key, Value: 7}, "a,123456789,42,7"},
		{"square", Payload{Kind: KindSquare, Key: key, Value: 15}, "s,123456789,42,15"},
		{"submit sentinel", Payload{Kind: KindSquare, Key: key, Value: 0}, "s,123456789,42,0"},
		{"stop", Payload{Kind: KindStop, Key: key}, "x,123456789,42"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := c.p.Encode()
			if got != c.wire {
				t.Errorf("Encode() = %q, want %q", got, c.wire)
			}
			decoded, err := DecodePayload(got)
			if err != nil {
				t.Fatalf("DecodePayload(%q) error: %v", got, err)
			}
			if decoded != c.p {
				t.Errorf("DecodePayload(%q) = %+v, want %+v", got, decoded, c.p)
			}
		})
	}
}

func TestPayloadFitsCallbackLimit(t *testing.T) {
	// Telegram callback data caps at 64 bytes.
	p := Payload{
		Kind:  KindSquare,
		Key:   models.SessionKey{ChatID: -1009999999999999999, MessageID: 2147483647},
		Value: 64,
	}
	if n := len(p.Encode()); n > 64 {
		t.Errorf("Encode() length = %d, exceeds 64-byte callback limit", n)
	}
}

func TestDecodePayloadErrors(t *testing.T) {
	cases := []string{
		"",
		"a",
		"a,1",
		"zz,1,2",
		"q,1,2,3",
		"a,notanumber,2,3",
		"a,1,notanumber,3",
		"a,1,2,notanumber",
		"a,1,2",       // action missing value
		"x,1,2,3",     // stop with extra value
		"s,1,2,3,4,5", // too many parts
	}
	for _, c := range cases {
		if _, err := DecodePayload(c); err == nil {
			t.Errorf("DecodePayload(%q) = nil error, want error", c)
		}
	}
}
