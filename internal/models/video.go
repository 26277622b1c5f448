package models

// VideoReference is the canonical identity of a submitted video.
// Resolved is false when the id is a fallback shortcode from a short link
// that could not be followed.
type VideoReference struct {
	CanonicalID string `json:"canonical_id"`
	SourceURL   string `json:"source_url"`
	Resolved    bool   `json:"resolved"`
	Username    string `json:"username,omitempty"`
}
