// Package preflight validates the runtime environment before serving
// queries or building the vector index.
//
// The package checks:
//   - The chunk corpus file exists and is readable
//   - The index directory is writable with sufficient disk space
//   - A persisted vector index matches the configured dimensionality
//   - Ollama is reachable and serves the configured models
//   - The optional cross-encoder endpoint responds
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New(cfg)
//	results := checker.RunAll(ctx)
//	if preflight.HasCriticalFailures(results) {
//	    // Refuse to start
//	}
package preflight
