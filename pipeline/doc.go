// Package pipeline orchestrates the envelope encryption flow: issuing a
// document encrypts plaintext under the owner's user key and records the
// resulting envelope's content id in the registry; viewing reverses the
// flow after an authorization check. The pipeline owns every ordering and
// ownership rule; handlers above it only translate errors to status codes.
package pipeline
