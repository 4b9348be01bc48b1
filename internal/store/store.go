package store

import "errors"

// ErrNotFound is returned when a requested entity does not exist in the store.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface.
type Store interface {
	// Bulb operations
	SaveBulb(b *Bulb) error
	GetBulb(ip string) (*Bulb, error)
	DeleteBulb(ip string) error
	ListBulbs() ([]*Bulb, error)

	// UpdateBulb atomically reads, modifies, and saves a bulb in a single
	// transaction. Returns ErrNotFound if the bulb does not exist.
	UpdateBulb(ip string, fn func(b *Bulb) error) error

	// Close the store
	Close() error
}
