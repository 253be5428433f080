// Package store persists imported places and lists. It is the write path of
// the import pipeline: find-or-create places by external identifier, create
// lists with their computed center together with their ordered links.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = eris.New("store: not found")

// PlaceInput is the write model for a place.
type PlaceInput struct {
	ExternalID string
	Name       string
	Address    string
	Category   string
	Latitude   float64
	Longitude  float64
	SourceURL  string
}

// Place is a persisted place row.
type Place struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"external_id"`
	Name       string    `json:"name"`
	Address    string    `json:"address,omitempty"`
	Category   string    `json:"category,omitempty"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	SourceURL  string    `json:"source_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ListInput is the write model for a list.
type ListInput struct {
	UserID      string
	Name        string
	DisplayName string
	Monetize    bool
	Price       float64
	CenterLat   float64
	CenterLng   float64
	PlaceCount  int
}

// List is a persisted list row.
type List struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name,omitempty"`
	Monetize    bool      `json:"monetize"`
	Price       float64   `json:"price"`
	CenterLat   float64   `json:"center_lat"`
	CenterLng   float64   `json:"center_lng"`
	PlaceCount  int       `json:"place_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListPlace links a place into a list at a position.
type ListPlace struct {
	PlaceID  string `json:"place_id"`
	Position int    `json:"position"`
	Note     string `json:"note,omitempty"`
}

// Store defines the persistence contract of the import pipeline.
type Store interface {
	// FindOrCreatePlace returns the place with p.ExternalID, inserting it
	// first if needed. created reports whether a row was inserted.
	FindOrCreatePlace(ctx context.Context, p PlaceInput) (place *Place, created bool, err error)

	// CreateListWithPlaces inserts the list and its ordered links in one
	// transaction. On error nothing is persisted.
	CreateListWithPlaces(ctx context.Context, l ListInput, links []ListPlace) (*List, error)
	GetList(ctx context.Context, id string) (*List, error)
	// ListsByUser returns a user's lists, oldest first.
	ListsByUser(ctx context.Context, userID string) ([]List, error)

	GetListPlaces(ctx context.Context, listID string) ([]ListPlace, error)

	CountPlaces(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// newList stamps a fresh id and creation time onto l.
func newList(l ListInput) *List {
	return &List{
		ID:          uuid.New().String(),
		UserID:      l.UserID,
		Name:        l.Name,
		DisplayName: l.DisplayName,
		Monetize:    l.Monetize,
		Price:       l.Price,
		CenterLat:   l.CenterLat,
		CenterLng:   l.CenterLng,
		PlaceCount:  l.PlaceCount,
		CreatedAt:   time.Now().UTC(),
	}
}

func validatePlace(p PlaceInput) error {
	if p.ExternalID == "" {
		return eris.New("store: place external id is required")
	}
	if p.Name == "" {
		return eris.Errorf("store: place %s has no name", p.ExternalID)
	}
	return nil
}
