package engine

import (
	"strings"

	"lake-wap/internal/domain"
)

// AlreadyExistsMarker is the engine message fragment reported when a branch or
// table being created is already present.
const AlreadyExistsMarker = "already exists"

// DefaultClassifier treats "already exists" errors as benign duplicates.
var DefaultClassifier = SubstringClassifier(AlreadyExistsMarker)

// SubstringClassifier returns a classifier that reports a benign duplicate when the
// error text contains any of markers, compared case-insensitively.
func SubstringClassifier(markers ...string) domain.ErrorClassifier {
	lowered := make([]string, 0, len(markers))
	for _, m := range markers {
		if m = strings.TrimSpace(m); m != "" {
			lowered = append(lowered, strings.ToLower(m))
		}
	}
	return func(err error) domain.ErrorClass {
		if err == nil {
			return domain.ErrorClassFatal
		}
		msg := strings.ToLower(err.Error())
		for _, m := range lowered {
			if strings.Contains(msg, m) {
				return domain.ErrorClassBenignDuplicate
			}
		}
		return domain.ErrorClassFatal
	}
}
