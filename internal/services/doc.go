// Package services defines the shared error taxonomy and context
// annotations used across pipeline components.
package services
