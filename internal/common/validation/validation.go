// Package validation checks identifiers typed by administrators.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	apperrors "community-bot/internal/common/errors"
)

var snowflakeRegex = regexp.MustCompile(`^[0-9]{17,20}$`)

// mention wrappers Discord inserts when an id is picked from the client.
var mentionPrefixes = []string{"<@&", "<@!", "<@", "<#"}

// NormalizeSnowflake accepts a raw id or a role, user or channel mention
// and returns the bare id.
func NormalizeSnowflake(value, fieldName string) (string, error) {
	id := strings.TrimSpace(value)
	if strings.HasSuffix(id, ">") {
		for _, p := range mentionPrefixes {
			if strings.HasPrefix(id, p) {
				id = strings.TrimSuffix(strings.TrimPrefix(id, p), ">")
				break
			}
		}
	}
	if !IsSnowflake(id) {
		return "", apperrors.NewValidationError(fieldName, fmt.Sprintf("must be a Discord id, got %q", value))
	}
	return id, nil
}

func IsSnowflake(id string) bool {
	return snowflakeRegex.MatchString(id)
}
