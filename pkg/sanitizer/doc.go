// Package sanitizer normalizes free-text input before validation and storage.
//
// All functions are idempotent: applying them twice gives the same result.
// Invalid input is normalized to an empty value rather than rejected; the
// validators decide whether an empty value is acceptable.
package sanitizer
