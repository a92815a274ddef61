// Package httpmw provides the middleware stack of the admin listener.
//
// opshttp composes it as: recover, request ID, trace response headers,
// logger scope, access log, metrics, then the chi router. Each middleware
// is independent and can be tested on its own. Query strings and headers
// other than the request ID are kept out of logs.
package httpmw
