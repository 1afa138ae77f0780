package services

import (
	"errors"
	"fmt"
)

// Fehler-Taxonomie der Kern-Operationen. Batch-Operationen sammeln diese
// Fehler pro Zeile ein, Einzel-Operationen geben sie direkt zurück.
var (
	// ErrDuplicateKey: Primary-Key-Kollision innerhalb eines Trackers.
	ErrDuplicateKey = errors.New("duplicate primary key value")

	// ErrRowNotFound: Zeile existiert nicht im Tracker.
	ErrRowNotFound = errors.New("row not found")

	// ErrTrackerNotFound: Tracker existiert nicht.
	ErrTrackerNotFound = errors.New("tracker not found")

	// ErrUpdateNotFound: Update-Record existiert nicht.
	ErrUpdateNotFound = errors.New("update record not found")

	// ErrUnauthorized: Ownership-Check fehlgeschlagen.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAlreadyProcessed: terminale Transition auf bereits
	// verarbeitetem Update-Record.
	ErrAlreadyProcessed = errors.New("update already processed")
)

// ValidationError beschreibt einen Schema-Verstoß in einer Zeile bzw.
// Spalte. Nie fatal für einen Batch.
type ValidationError struct {
	Column string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed for column %q: %s", e.Column, e.Reason)
}

// validationErrorf ist ein Shortcut für neue ValidationErrors.
func validationErrorf(column, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Column: column, Reason: fmt.Sprintf(format, args...)}
}
