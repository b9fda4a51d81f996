// Package bundle reads application bundle metadata.
package bundle
