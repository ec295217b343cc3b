// Package chat abstracts the remote chat surface the automation reports to:
// status messages edited in place, puzzle images edited in place, and
// inline-keyboard payloads carrying operator input back in.
package chat

// Handle identifies one message the service may later edit or delete.
type Handle struct {
	ChatID    int64
	MessageID int
}

// Button is one inline-keyboard button.
type Button struct {
	Text string
	Data string
}

// Chat is the transport capability consumed by the core. Implementations
// must keep edits in place; the automation never accumulates messages.
type Chat interface {
	// Notify sends a status message and returns its handle.
	Notify(chatID int64, text string, buttons [][]Button) (Handle, error)

	// EditStatus replaces the text (and keyboard) of an earlier message.
	EditStatus(h Handle, text string, buttons [][]Button) error

	// SendImage sends a photo with a caption and keyboard.
	SendImage(chatID int64, name string, image []byte, caption string, buttons [][]Button) (Handle, error)

	// SendImageURL sends a photo by URL.
	SendImageURL(chatID int64, imageURL, caption string, buttons [][]Button) (Handle, error)

	// EditImage replaces the photo (and keyboard) of an earlier photo message.
	EditImage(h Handle, name string, image []byte, buttons [][]Button) error

	// DeleteMessage removes a message entirely.
	DeleteMessage(h Handle) error
}
