// Package api handles incoming HTTP requests, routing, request validation,
// and response formatting. It acts as an adapter between external clients
// and the processing service, translating HTTP concerns to queue operations.
// Every request is filed under the owner id of the caller's access token.
package api
