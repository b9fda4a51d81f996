// Package paths provides the on-disk layout of the app library.
//
// Every component resolves its directories through a Layout so that the
// pipeline stages agree on where archives, scratch directories, installed
// bundles and catalog records live:
//
//	<root>/inbox/<file>.ipa          uploaded archives
//	<root>/downloads/<import-id>.ipa fetched archives
//	<root>/scratch/<import-id>/      extraction output
//	<root>/apps/<import-id>/X.app    registered bundles
//	<root>/catalog/<import-id>.json  catalog records
package paths
