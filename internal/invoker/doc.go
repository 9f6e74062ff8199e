// Package invoker defines the boundary between the processing core and the
// external inference service. The core only depends on the Invoker interface;
// concrete adapters live under internal/platform.
package invoker
