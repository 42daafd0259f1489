// Package api exposes the pipeline over HTTP: chunked upload session
// endpoints and the admin order endpoints. Handlers stay thin; all pipeline
// semantics live in the upload and service packages.
package api
