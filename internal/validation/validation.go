package validation

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
)

// ErrCityEmpty is returned when the city is empty or whitespace-only after trim.
var ErrCityEmpty = errors.New("city is required")

// ErrCityTooLong is returned when the city name exceeds the maximum length.
var ErrCityTooLong = errors.New("city name too long")

// ErrCityInvalidChars is returned when the city contains disallowed characters.
var ErrCityInvalidChars = errors.New("city contains invalid characters")

// ErrCoordinateNotNumeric is returned when lat or lon fails to parse.
var ErrCoordinateNotNumeric = errors.New("coordinate is not numeric")

// ErrCoordinateOutOfRange is returned for lat outside [-90,90] or lon outside [-180,180].
var ErrCoordinateOutOfRange = errors.New("coordinate out of range")

// ValidateCity trims the input, enforces a length bound (maxLen in runes, 0
// disables the check), and restricts to letters (Unicode), digits, space,
// comma, period, apostrophe and hyphen. Returns the trimmed string; lowercase
// normalization is left to the service layer.
func ValidateCity(input string, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return "", ErrCityEmpty
	}
	if maxLen > 0 && len(r) > maxLen {
		return "", ErrCityTooLong
	}
	for _, c := range r {
		if !isAllowedCityRune(c) {
			return "", ErrCityInvalidChars
		}
	}
	return s, nil
}

func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}

// ParseCoordinates parses and bounds-checks a lat/lon query pair. Rejection
// happens here, before the aggregation service: it never sees non-numeric
// input.
func ParseCoordinates(latStr, lonStr string) (lat, lon float64, err error) {
	lat, err = strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return 0, 0, ErrCoordinateNotNumeric
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return 0, 0, ErrCoordinateNotNumeric
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, ErrCoordinateOutOfRange
	}
	return lat, lon, nil
}
