// Package state provides the in-memory session and action tables and the
// file-backed job store.
package state

import "github.com/user/clawmon/internal/types"

// Compile-time interface compliance checks.
var _ types.SessionReader = (*SessionTable)(nil)
var _ types.ActionReader = (*ActionTable)(nil)
