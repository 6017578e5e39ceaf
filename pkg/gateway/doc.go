// Package gateway exposes the run entry point over HTTP. A run is available
// as a single JSON response, as a server-sent event stream, and over a
// websocket that streams events followed by a result frame.
package gateway
