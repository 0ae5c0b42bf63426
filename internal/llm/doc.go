// Package llm defines the contracts between the batch core and external
// AI provider services: the text, speech, and image client interfaces, the
// immutable per-run prompt configuration, the shared error taxonomy, and the
// per-client request throttle. It abstracts the details of each provider's
// HTTP API, allowing the batch pipeline to fill note fields without coupling
// to a specific external service.
package llm
