// Package upload implements the chunked-upload session manager: it tracks
// in-flight multi-file upload sessions, reassembles chunks into validated
// files, decides when a draft order is ready, and commits ready sessions
// into durable orders with their background tasks enqueued.
package upload
