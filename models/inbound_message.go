package models

// InboundMessage ist die provider-neutrale Form einer eingehenden E-Mail.
// Die ID dient als Dedup-Key, Body bzw. Snippet als Extraktions-Input.
type InboundMessage struct {
	ID        string `json:"id"`
	Subject   string `json:"subject"`
	FromName  string `json:"from_name,omitempty"`
	FromEmail string `json:"from_email"`
	Date      int64  `json:"date"` // Unix-Sekunden
	Body      string `json:"body,omitempty"`
	Snippet   string `json:"snippet,omitempty"`
}

// Text gibt den Extraktions-Input zurück: Body, sonst Snippet.
func (m *InboundMessage) Text() string {
	if m.Body != "" {
		return m.Body
	}
	return m.Snippet
}
