package adapter

import "context"

// Hint is a position-tagged device record recovered from the vendor's
// web console by the external scraper. Hints contribute layout positions
// and extra link edges only; they never take part in identity merge.
type Hint struct {
	// DeviceID is whatever identifier the console renders (MAC when the
	// scraper can read one, otherwise a display name).
	DeviceID string  `json:"device_id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	// LinkPeer names the node this device is drawn connected to, if any.
	LinkPeer string `json:"link_peer,omitempty"`
}

// HintSource is the scraper collaborator, consumed as a black box.
type HintSource interface {
	Hints(ctx context.Context, scope string) ([]Hint, error)
}

// HintFunc adapts a function to HintSource.
type HintFunc func(ctx context.Context, scope string) ([]Hint, error)

func (f HintFunc) Hints(ctx context.Context, scope string) ([]Hint, error) {
	return f(ctx, scope)
}
