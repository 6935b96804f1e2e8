package service

import (
	"encoding/json"
	"strconv"
	"strings"

	"alerts-service/apperrors"
)

// ParseCoordinates validates a loosely typed coordinates value. It must be
// exactly two numbers (or numeric strings) ordered longitude before
// latitude, with longitude in [-180, 180] and latitude in [-90, 90].
func ParseCoordinates(raw []interface{}) (lon, lat float64, err error) {
	if len(raw) != 2 {
		return 0, 0, apperrors.Validation("coordinates must be a [longitude, latitude] pair")
	}
	lon, err = coordNumber(raw[0])
	if err != nil {
		return 0, 0, apperrors.Validation("invalid longitude: %v", raw[0])
	}
	lat, err = coordNumber(raw[1])
	if err != nil {
		return 0, 0, apperrors.Validation("invalid latitude: %v", raw[1])
	}
	if lon < -180 || lon > 180 {
		return 0, 0, apperrors.Validation("longitude %g out of range [-180, 180]", lon)
	}
	if lat < -90 || lat > 90 {
		return 0, 0, apperrors.Validation("latitude %g out of range [-90, 90]", lat)
	}
	return lon, lat, nil
}

// ParseCoordinatesField parses the multipart form rendition of coordinates:
// a JSON array or a bare "lon,lat" pair.
func ParseCoordinatesField(field string) ([]interface{}, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return nil, apperrors.Validation("coordinates are required")
	}
	if strings.HasPrefix(field, "[") {
		var raw []interface{}
		if err := json.Unmarshal([]byte(field), &raw); err != nil {
			return nil, apperrors.Validation("coordinates must be a JSON array")
		}
		return raw, nil
	}
	parts := strings.Split(field, ",")
	raw := make([]interface{}, 0, len(parts))
	for _, part := range parts {
		raw = append(raw, strings.TrimSpace(part))
	}
	return raw, nil
}

// NormalizeAnonymous accepts a bool or the literal strings "true"/"false".
// Absence means false.
func NormalizeAnonymous(v interface{}) (bool, error) {
	switch value := v.(type) {
	case nil:
		return false, nil
	case bool:
		return value, nil
	case string:
		if value == "" {
			return false, nil
		}
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return false, apperrors.Validation("isAnonymous must be a boolean")
		}
		return parsed, nil
	default:
		return false, apperrors.Validation("isAnonymous must be a boolean")
	}
}

func coordNumber(v interface{}) (float64, error) {
	switch value := v.(type) {
	case float64:
		return value, nil
	case json.Number:
		return value.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(value), 64)
	case int:
		return float64(value), nil
	default:
		return 0, apperrors.Validation("not a number")
	}
}
