// Package httpclient downloads remote bundles over HTTP.
//
// Requests go through resty on top of a go-retryablehttp transport. A token
// bucket paces outgoing requests and each origin host gets its own circuit
// breaker, so one failing mirror does not block downloads from another.
package httpclient
