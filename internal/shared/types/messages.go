package types

// PageMessageTag identifies messages published by injected page scripts on
// the page->host channel. The channel is one-way: pages never receive a
// reply on it; host-initiated work reaches the page through script
// execution in the tab's context.
type PageMessageTag string

const (
	TagCredentialSubmit  PageMessageTag = "credential-submit"
	TagLoginFormDetected PageMessageTag = "login-form-detected"
	TagAutofillFocus     PageMessageTag = "autofill-focus"
	TagAutofillBlur      PageMessageTag = "autofill-blur"
)

// PageMessage is the envelope for all page->host messages.
type PageMessage struct {
	Tag   PageMessageTag `json:"tag"`
	TabID string         `json:"tab_id"`
	URL   string         `json:"url"`

	// credential-submit
	Username string `json:"username,omitempty"`
	Secret   string `json:"secret,omitempty"`

	// login-form-detected
	FormCount int  `json:"form_count,omitempty"`
	Virtual   bool `json:"virtual,omitempty"`

	// autofill-focus
	Field *FieldRect `json:"field,omitempty"`
}

// FieldRect is the bounding box of a focused password field, in page
// coordinates, used to position the autofill dropdown.
type FieldRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}
