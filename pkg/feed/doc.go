// Package feed implements a streaming chat feed: an ordered message log with
// change notification plus the response orchestration that drives a
// user-supplied callback against the latest message.
//
// One orchestration cycle runs per feed at a time. A cycle races a transient
// placeholder entry against the callback, drains the callback's Response
// (single value, pull iterator, channel, or future) into a single message via
// upserts, and converts callback failures into feed entries per the
// configured error policy.
package feed
