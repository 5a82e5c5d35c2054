/*
Package api is the HTTP presentation layer over the operational core.

Routing is a chi router. Everything under /api/v1 requires the shared
X-Api-Key header; /health, /ready, /live and /metrics stay open for
probes and scrapers. Boundary errors map onto status codes (validation
400, not found 404, conflict 409) with a {success:false, message} body;
messages reach the client verbatim.
*/
package api
