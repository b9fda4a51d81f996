/*
Package pipeline resolves bundle sources into catalog entries.

An import is a sequence of typed stages composed with Then:

	remote: acquire -> extract -> register
	local:           extract -> register

Each stage is wrapped by Named, so whatever fails surfaces as one
*StageError carrying the stage name. Runs execute on their own goroutine;
ImportLocal and ImportRemote only validate input, enqueue, and return the
import ID. Progress is reported through a Presenter and a pollable Tracker.

Input errors (ErrInvalidURL, ErrUnsupportedArchive, ErrNotReadable and a full
acquisition queue) are returned synchronously. Nothing is shown or tracked
for them.

What happens to the scratch directory of a failed run is an explicit
CleanupPolicy: CleanupOnFailure (default) removes it, KeepOnFailure leaves
it for inspection.
*/
package pipeline
