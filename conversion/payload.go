package conversion

// PixelParams is the second argument of the browser track call.
type PixelParams struct {
	Value       *float64 `json:"value,omitempty"`
	Currency    string   `json:"currency,omitempty"`
	ContentName string   `json:"content_name,omitempty"`
	ContentIDs  []string `json:"content_ids,omitempty"`
	OrderID     string   `json:"order_id"`
}

// PixelOptions is the third argument of the browser track call. EventID is
// the dedup key the ad platform matches against the server event_id.
type PixelOptions struct {
	EventID string `json:"eventID"`
}

// PixelPayload is track(event, params, options) in serializable form.
type PixelPayload struct {
	Event   EventName    `json:"event"`
	Params  PixelParams  `json:"params"`
	Options PixelOptions `json:"options"`
}

// ToPixel converts an event into the browser track call arguments.
func ToPixel(e Event) PixelPayload {
	content := ContentOf(e)
	params := PixelParams{
		ContentName: content.Descriptor(),
		ContentIDs:  content.IDs(),
		OrderID:     e.DedupKey().String(),
	}
	if v, currency, ok := ValueOf(e); ok {
		value := v
		params.Value = &value
		params.Currency = currency
	}
	return PixelPayload{
		Event:   e.Name(),
		Params:  params,
		Options: PixelOptions{EventID: e.DedupKey().String()},
	}
}
