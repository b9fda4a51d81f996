// Package registration commits expanded bundles to the catalog.
//
// Register is all-or-nothing: metadata is parsed before anything moves, and
// a failed commit removes the bundle it just installed, so the catalog never
// holds a partial row and apps/ never holds an orphan.
//
// Installed layout:
//
//	<storage>/apps/<importID>/<Name>.app
package registration
