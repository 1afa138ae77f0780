package llm

// Profile wählt eines der fest definierten Extraktions-Profile aus.
// Bewusst eine geschlossene Enum statt einer stringly-typed Registry.
type Profile int

const (
	// ProfileTrackerUpdate: kombinierter Match+Extract-Aufruf über bereits
	// vorgefilterte Tracker.
	ProfileTrackerUpdate Profile = iota

	// ProfileTrackerDiscovery: konservativeres Profil, das nur eindeutig
	// belegte Werte extrahiert (für Quellen ohne Matcher-Vorfilter).
	ProfileTrackerDiscovery
)

// ProfileSpec bündelt Instruktionen und Call-Settings eines Profils.
type ProfileSpec struct {
	Instructions string
	Settings     CallSettings
}

// Spec gibt die Definition des Profils zurück; das Basis-Setting liefert
// Modell und Token-Limit, das Profil steuert Temperatur und Instruktionen.
func (p Profile) Spec(base CallSettings) ProfileSpec {
	switch p {
	case ProfileTrackerDiscovery:
		base.Temperature = 0
		return ProfileSpec{
			Instructions: "You are a cautious data extraction assistant. Only extract values that are stated verbatim in the text. " +
				"If a value is ambiguous or implied, omit it. Respond with strict JSON only, no prose, no markdown.",
			Settings: base,
		}
	default:
		return ProfileSpec{
			Instructions: "You are a data extraction assistant for user-defined trackers. " +
				"Given an email and a set of tracker schemas, identify which trackers the email updates and extract field values. " +
				"Respond with strict JSON only, no prose, no markdown.",
			Settings: base,
		}
	}
}
