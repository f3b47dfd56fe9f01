// Package web provides the http_request tool.
//
// Responses are returned with their status code. JSON bodies are decoded
// into structured values, HTML is reduced to readable markdown-ish text and
// anything else is returned as text.
package web
