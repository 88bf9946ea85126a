// Package requestid tags every API request with a correlation id.
//
// Middleware reads X-Request-ID from the client when it is well formed and
// generates a UUIDv7 otherwise. The id travels in the request context and
// back to the client in the response header. LogExtractor plugs it into
// pkg/logger so handler and service logs carry request_id:
//
//	log := logger.New(logger.WithContextExtractors(requestid.LogExtractor()))
//	router.Use(requestid.Middleware)
package requestid
