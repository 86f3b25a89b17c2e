// Package core contains the vault's domain contracts, entities, and
// orchestration logic: the account lifecycle, import pipeline, verification,
// the credential destroyer and the key rotation operations. Lower-level
// adapters must depend on this package; core must not depend on
// persistence-specific or transport-specific adapters.
package core
