// Package core contains the canonical integration domain contracts, entities,
// and configuration. The pipeline, oauth, webhook, and store packages depend
// on this package; core must not depend on transport-specific adapters.
package core
