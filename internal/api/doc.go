// Package api serves the assistant over HTTP.
//
// Routes live under /api. Errors are JSON objects of the form
// {"error": "..."} with a status derived from the store error taxonomy:
// not found is 404, validation 400, timeout 504, backend failures 502.
// GET /api/threads/{id}/events streams run outcomes as Server-Sent Events.
//
// POST /api/threads takes files only as multipart/form-data "file" parts.
// Names are reduced to a bare base name, only txt, pdf, png, jpg, jpeg and gif
// are accepted, and the files live under the configured upload dir just long
// enough to be handed to the backend.
package api
