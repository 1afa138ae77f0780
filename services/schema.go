package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"trackdeck/models"
)

// columnKeyRegex ist die Allow-List für Spalten-Keys. Keys landen in
// dynamischen Query-Prädikaten (jsonb-Pfade) und dürfen deshalb nur aus
// alphanumerischen Zeichen, Unterstrich und Bindestrich bestehen.
var columnKeyRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidColumnKey prüft einen Spalten-Key gegen die Allow-List.
func ValidColumnKey(key string) bool {
	return key != "" && columnKeyRegex.MatchString(key)
}

// ValidateSchema prüft ein Spalten-Schema: Keys eindeutig und
// allow-list-konform, Typen bekannt, Primary-Key-Spalte vorhanden.
func ValidateSchema(defs []models.ColumnDefinition, primaryKeyColumn string) error {
	if len(defs) == 0 {
		return validationErrorf("", "tracker needs at least one column")
	}

	seen := make(map[string]bool, len(defs))
	pkFound := false
	for _, def := range defs {
		if !ValidColumnKey(def.Key) {
			return validationErrorf(def.Key, "invalid column key")
		}
		if seen[def.Key] {
			return validationErrorf(def.Key, "duplicate column key")
		}
		seen[def.Key] = true

		switch def.Type {
		case models.ColumnTypeText, models.ColumnTypeNumber, models.ColumnTypeDate,
			models.ColumnTypeSelect, models.ColumnTypeBoolean:
		default:
			return validationErrorf(def.Key, "unknown column type %q", def.Type)
		}

		if def.Type == models.ColumnTypeSelect && len(def.Options) == 0 {
			return validationErrorf(def.Key, "select column needs options")
		}
		if def.Key == primaryKeyColumn {
			pkFound = true
		}
	}
	if !pkFound {
		return validationErrorf(primaryKeyColumn, "primary key column not in schema")
	}
	return nil
}

// CoerceValue validiert und normalisiert einen Wert gegen die
// Spalten-Definition. Nil bleibt nil.
func CoerceValue(def *models.ColumnDefinition, value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}

	switch def.Type {
	case models.ColumnTypeNumber:
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, validationErrorf(def.Key, "value %q is not numeric", v)
			}
			return f, nil
		default:
			return nil, validationErrorf(def.Key, "value of type %T is not numeric", value)
		}

	case models.ColumnTypeBoolean:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			s := strings.TrimSpace(strings.ToLower(v))
			if s == "true" || s == "1" || s == "yes" || s == "on" {
				return true, nil
			}
			if s == "false" || s == "0" || s == "no" || s == "off" {
				return false, nil
			}
			return nil, validationErrorf(def.Key, "value %q is not boolean", v)
		case float64:
			return v != 0, nil
		case int:
			return v != 0, nil
		default:
			return nil, validationErrorf(def.Key, "value of type %T is not boolean", value)
		}

	case models.ColumnTypeSelect:
		s := FormatCellValue(value)
		for _, opt := range def.Options {
			if strings.EqualFold(opt, s) {
				return opt, nil
			}
		}
		return nil, validationErrorf(def.Key, "value %q not in options", s)

	default: // text, date
		return FormatCellValue(value), nil
	}
}

// NormalizeRowData validiert eine Daten-Map gegen das Tracker-Schema.
// Unbekannte Keys werden still verworfen; bei partial=false müssen alle
// Pflichtfelder vorhanden sein. Gibt die bereinigte Map zurück.
func NormalizeRowData(tracker *models.Tracker, data map[string]interface{}, partial bool) (map[string]interface{}, error) {
	defs, err := tracker.ColumnDefs()
	if err != nil {
		return nil, fmt.Errorf("invalid tracker schema: %w", err)
	}

	clean := make(map[string]interface{}, len(data))
	for i := range defs {
		def := &defs[i]
		value, present := data[def.Key]

		if !present {
			if def.Required && !partial {
				return nil, validationErrorf(def.Key, "required field missing")
			}
			continue
		}
		if value == nil && def.Required {
			return nil, validationErrorf(def.Key, "required field is null")
		}

		coerced, err := CoerceValue(def, value)
		if err != nil {
			return nil, err
		}
		clean[def.Key] = coerced
	}
	return clean, nil
}

// FormatCellValue rendert einen lose typisierten Zellen-Wert als String
// (für Row-IDs und CSV-Export).
func FormatCellValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}
