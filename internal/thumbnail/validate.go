package thumbnail

import (
	"errors"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

var hexColorRegex = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// ValidationResult lists every violation found; OK is true when there are none.
type ValidationResult struct {
	OK     bool
	Errors []string
}

// Validate checks req without calling anything external. It accumulates all
// violations instead of stopping at the first.
func Validate(req *GenerationRequest) ValidationResult {
	var errs []string

	if strings.TrimSpace(req.FinalDescription) == "" {
		errs = append(errs, "finalDescription is required")
	}
	themeColor := strings.TrimSpace(req.ThemeColor)
	if themeColor == "" {
		errs = append(errs, "themeColor is required")
	}
	if strings.TrimSpace(req.Category) == "" {
		errs = append(errs, "category is required")
	}
	if themeColor != "" && !hexColorRegex.MatchString(themeColor) {
		errs = append(errs, "themeColor must be a valid hex color code")
	}

	raw := strings.TrimSpace(req.IconDescriptionsRaw)
	if n := len(req.Icons); n > 0 {
		if n > MaxIcons {
			errs = append(errs, "Maximum 5 icon images allowed")
		}
		if raw == "" {
			errs = append(errs, "iconDescriptions is required when iconImages are provided")
		} else {
			descs, err := parseIconDescriptions(raw)
			switch {
			case errors.Is(err, errNotJSON), errors.Is(err, errNotArray):
				errs = append(errs, "iconDescriptions must be a valid JSON array")
			default:
				if len(descs) != n {
					errs = append(errs, "Number of iconDescriptions must match number of iconImages")
				}
				if len(descs) > MaxIcons {
					errs = append(errs, "Maximum 5 image descriptions allowed")
				}
				if errors.Is(err, errNotStrings) {
					errs = append(errs, "iconDescriptions must contain only strings")
				}
			}
		}
	} else if raw != "" {
		descs, err := parseIconDescriptions(raw)
		switch {
		case errors.Is(err, errNotJSON):
			errs = append(errs, "iconDescriptions must be a valid JSON array")
		case errors.Is(err, errNotArray):
			errs = append(errs, "iconDescriptions must be an array with maximum 5 items")
		default:
			if len(descs) > MaxIcons {
				errs = append(errs, "iconDescriptions must be an array with maximum 5 items")
			}
			if errors.Is(err, errNotStrings) {
				errs = append(errs, "iconDescriptions must contain only strings")
			}
		}
	}

	if len(errs) > 0 {
		log.Debug().Str("requestId", req.RequestID).Strs("errors", errs).Msg("Request validation failed")
		return ValidationResult{OK: false, Errors: errs}
	}
	return ValidationResult{OK: true}
}
