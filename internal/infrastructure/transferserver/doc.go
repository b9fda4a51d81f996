// Package transferserver implements transfer.Service with an ephemeral
// HTTP listener per session.
//
// Each session binds an OS-assigned port on the configured host and serves:
//
//	GET /status          session metadata
//	GET /app.ipa         the bundle re-packed as Payload/<Name>.app, streamed
//	GET /manifest.plist  over-the-air install manifest (install mode only)
//
// Share sessions created with a PIN require ?pin= on the package and
// manifest routes. Only the bcrypt hash of the PIN is kept.
package transferserver
