// Package api holds the HTTP/JSON schemas of a mythcoin node and a client for
// them. The server implementation lives in internal/api.
package api
