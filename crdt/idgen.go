package crdt

import "github.com/google/uuid"

// NewAgentSuffix returns a short random suffix a host application can
// append to a human-chosen name (e.g. "alice-3f9a2c1b") to get an agent
// identity that's unique across sessions without requiring central
// coordination, the same role the teacher's randomUUIDv1 plays for SiteID
// in CausalTree.Fork.
func NewAgentSuffix() string {
	id := uuid.New()
	return id.String()[:8]
}
