// Package hooks provides ready-made request lifecycle callbacks: request ID
// assignment and access logging. They are plain BeforeRequest/AfterRequest
// functions, not a separate middleware abstraction.
package hooks
