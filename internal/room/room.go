// Package room derives canonical chat room identifiers.
package room

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sereno-app/sereno/internal/chaterr"
)

// Separator joins participant identifiers inside a direct room id.
const Separator = "_"

// ID is a canonical room identifier. Two ids built from the same set of
// participants are equal regardless of argument order.
type ID string

// FromParticipants builds the room id for a set of participants. Blank and
// repeated identifiers are ignored; the rest are sorted and joined.
func FromParticipants(participants ...string) (ID, error) {
	seen := make(map[string]struct{}, len(participants))
	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.Contains(p, Separator) {
			return "", fmt.Errorf("%w: participant %q contains %q", chaterr.ErrInvalidRoom, p, Separator)
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		ids = append(ids, p)
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("%w: no participants", chaterr.ErrInvalidRoom)
	}
	slices.Sort(ids)
	return Parse(strings.Join(ids, Separator))
}

// Parse validates a caller-supplied room id. The id ends up in a URL path,
// so path and query delimiters are rejected.
func Parse(raw string) (ID, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty room id", chaterr.ErrInvalidRoom)
	}
	if strings.ContainsAny(s, "/?# \t\r\n") {
		return "", fmt.Errorf("%w: %q contains reserved characters", chaterr.ErrInvalidRoom, s)
	}
	return ID(s), nil
}

// Participants splits the id back into its participant identifiers.
func (id ID) Participants() []string {
	if id == "" {
		return nil
	}
	return strings.Split(string(id), Separator)
}

func (id ID) String() string {
	return string(id)
}
