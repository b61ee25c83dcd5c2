// Package webfeed serves chat feeds over HTTP and websockets. A FeedManager
// owns the live feeds, each paired with a stream forwarder that projects
// published frames into the persistence store and broadcasts them to the
// feed's websocket connection pool. Handlers are app-composed: the package
// exposes http.HandlerFunc constructors and a Server that runs whatever the
// caller mounted.
package webfeed
