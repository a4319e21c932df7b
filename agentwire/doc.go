// Package agentwire implements the line-oriented wire protocol spoken by
// the external agent bridge process and the classification of raw lines
// into typed domain events.
//
// The protocol is newline-delimited JSON. Every record carries a "type"
// discriminator; assistant and user records wrap an ordered list of
// content fragments (text, tool_use, tool_result, image), while some
// transports emit flattened single-event forms (tool_call, tool_result).
// Unknown record and fragment kinds are skipped rather than treated as
// errors, and lines that are not JSON at all degrade to plain text.
package agentwire
