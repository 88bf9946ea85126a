// Package api is the storefront's HTTP surface.
//
// NewRouter mounts the /v1 routes on a chi router. Handlers are thin: they
// authenticate the caller with a Firebase ID token, decode the request and
// delegate to the entitlement service or the import job tracker. Service
// errors become JSON error envelopes with stable codes.
//
// Job progress is streamed as server-sent events from
// GET /v1/jobs/{id}/events. Browsers cannot set headers on an EventSource,
// so authenticated routes also accept the token in the access_token query
// parameter.
package api
