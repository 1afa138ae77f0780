// Package graphmail enthält die Logik für die Microsoft Graph Mail API.
package graphmail

// ListResponse repräsentiert die JSON-Antwort von /me/messages.
type ListResponse struct {
	Value []GraphMessage `json:"value"`
}

// GraphMessage repräsentiert eine einzelne Nachricht in der Graph-Antwort.
type GraphMessage struct {
	ID               string `json:"id"`
	Subject          string `json:"subject"`
	BodyPreview      string `json:"bodyPreview"`
	ReceivedDateTime string `json:"receivedDateTime"` // RFC 3339
	Body             struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	From struct {
		EmailAddress struct {
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"from"`
}
