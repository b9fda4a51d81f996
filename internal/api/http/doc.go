// Package http exposes the library pipeline and transfer sessions over gin.
//
// Imports return 202 with an import ID at once; progress is pushed over the
// WebSocket hub and can be polled at /library/imports/:id.
//
// Error mapping:
//   - bad URL, unsupported archive, invalid mode: 400
//   - unknown entry or session: 404
//   - entry without a bundle path: 422
//   - acquisition queue full or shutting down: 503
package http
