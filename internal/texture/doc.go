// Package texture drives one texture generation task through a remote job
// service: initiate a session, upload the photo, query the task phase and
// download the generated maps once the remote job reports completion.
//
// Network-bound operations run on worker goroutines. Their results are
// marshalled onto a Coordinator, the single goroutine that owns the
// TaskSession and every other piece of user-facing state.
package texture
