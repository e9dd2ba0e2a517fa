// Package server exposes the event store and query engine over HTTP.
//
// Routes:
//
//	GET  /             server name and version
//	POST /events       create one event, {"event": "category.event", "data": {...}}
//	GET  /events/{id}  read one event
//	POST /query        run a query from a JSON body
//	GET  /query        run a query from URL parameters
//	GET  /metrics      Prometheus metrics
//
// Errors are rendered as {"error": message}. Client errors keep their
// message and status; everything else is a 500 with "Internal Error" and
// is logged with the request id.
package server
