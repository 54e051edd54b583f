package domain

import "time"

// Modality describes how the request reached us.
type Modality string

const (
	ModalityText       Modality = "text"
	ModalityImage      Modality = "image"
	ModalityVoice      Modality = "voice"
	ModalityVoiceImage Modality = "voice_image"
	ModalityTextImage  Modality = "text_image"
)

// HasImage reports whether the request carries image data.
func (m Modality) HasImage() bool {
	switch m {
	case ModalityImage, ModalityVoiceImage, ModalityTextImage:
		return true
	}
	return false
}

// Request is a single user request. It is built once by the channel layer and
// never mutated afterwards; handlers receive read-only views of it.
type Request struct {
	ID        string
	SessionID string
	Text      string
	Modality  Modality
	Language  string // "en" | "hi"
	ImageRef  string // opaque reference to uploaded image data, empty if none

	// Context carries free-form per-user fields: location, crop, profile.
	Context RequestContext

	ReceivedAt time.Time
}

// RequestContext is the shared read-only context handed to every handler.
type RequestContext struct {
	Location string
	Crop     string
	Profile  map[string]string

	// History holds the most recent prior exchanges of this session,
	// oldest first. Populated by the pipeline before routing.
	History []Exchange
}

// Validate reports whether the request has the fields the pipeline requires.
// This is the only failure class surfaced directly to the caller.
func (r *Request) Validate() error {
	if r.Text == "" && !r.Modality.HasImage() {
		return ErrEmptyRequest
	}
	return nil
}
