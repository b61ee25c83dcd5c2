// Package feedstream carries feed change events over watermill topics.
//
// Every feed owns one topic ("feed:<id>"). The in-memory backend uses
// gochannel pub/sub for single-process deployments; the Redis Streams backend
// fans events out across processes with consumer groups created at the
// stream tail.
package feedstream
