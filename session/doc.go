// Package session models the impersonation escape-hatch as an explicit,
// short-lived value object with create/read/clear operations, persisted
// in a caller-owned Redis session store.
//
// The engine never initiates impersonation. The caller checks permissions,
// writes a [Record], and from then on every plan built for that session
// runs as the impersonated principal, forcibly marked active.
package session
