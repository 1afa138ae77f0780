// Package gmail enthält die Logik für die Interaktion mit der Gmail REST API.
package gmail

// ListResponse repräsentiert die JSON-Antwort von users/me/messages.
type ListResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	NextPageToken string `json:"nextPageToken"`
}

// Message repräsentiert eine einzelne Nachricht im "full"-Format.
type Message struct {
	ID           string  `json:"id"`
	Snippet      string  `json:"snippet"`
	InternalDate string  `json:"internalDate"` // Millisekunden seit Epoch, als String
	Payload      Payload `json:"payload"`
}

// Payload ist der MIME-Baum einer Nachricht.
type Payload struct {
	MimeType string    `json:"mimeType"`
	Headers  []Header  `json:"headers"`
	Body     Body      `json:"body"`
	Parts    []Payload `json:"parts"`
}

// Header ist ein einzelner MIME-Header.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Body trägt die base64url-kodierten Daten eines MIME-Parts.
type Body struct {
	Data string `json:"data"`
	Size int    `json:"size"`
}
