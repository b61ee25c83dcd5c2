// Package chat defines the message entity for a chat feed plus the builder
// that normalizes heterogeneous payloads into messages.
//
// Payload shapes accepted throughout the package:
//   - a plain value (string or any opaque content)
//   - a map[string]any record carrying exactly one of "value" or "object",
//     optionally "user" and "avatar"
//   - an already-built *Message
//
// Messages are mutable in place: Stream appends text tokens and Update merges
// fields without changing the message's slot in its feed.
package chat
