// Package gemini provides an implementation of the invoker.Invoker interface
// backed by Google's Gemini API.
//
// This package is an infrastructure adapter: it renders a per-request-type
// prompt from embedded templates, waits on a token bucket so bursts of
// dispatched requests stay under the API quota, asks the model for a JSON
// response and classifies failures for the processing core.
//
// Error classification:
//   - Request types without a prompt template fail with invoker.ErrUnknownRequestType
//   - Safety blocks fail with invoker.ErrContentBlocked
//   - Empty or non-JSON model output fails with invoker.ErrInvalidResponse
//   - API and transport errors are wrapped in invoker.ErrTransientFailure
//
// Only the first three are permanent; the processing core retries the rest.
package gemini
