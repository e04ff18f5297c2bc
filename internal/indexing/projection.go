package indexing

import (
	"strings"

	"github.com/ajitpratap0/cortex-graph/internal/models"
)

// ContentText is the text embedded into the content space:
// "{name} is a {type}. {observations joined by spaces}".
func ContentText(e models.Entity) string {
	return e.Name + " is a " + e.Type + ". " + strings.Join(e.Observations, " ")
}

// ObservationText is the text embedded into the observation space. An entity
// without observations falls back to its name.
func ObservationText(e models.Entity) string {
	if len(e.Observations) == 0 {
		return e.Name
	}
	return strings.Join(e.Observations, " ")
}

// IdentityText is the text embedded into the identity space: "{name} ({type})".
func IdentityText(e models.Entity) string {
	return e.Key().String()
}

// ContextText is the text embedded for a relation: "{source} {relationType} {target}".
func ContextText(r models.Relation) string {
	return r.Source + " " + r.RelationType + " " + r.Target
}
