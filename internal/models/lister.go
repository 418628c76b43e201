// Package models lists the decks and note models available in the running
// Anki collection, so the operator can fill in the config file with names
// that actually exist.
package models

import (
	"fmt"
	"io"
	"sort"
)

// Collection is the part of the card store the lister needs.
type Collection interface {
	DeckNames() ([]string, error)
	ModelNames() ([]string, error)
}

// Lister prints available decks and note models.
type Lister struct {
	collection Collection
}

// NewLister creates a lister over the given collection.
func NewLister(collection Collection) *Lister {
	return &Lister{collection: collection}
}

// List writes the deck and model names to w, sorted.
func (l *Lister) List(w io.Writer) error {
	decks, err := l.collection.DeckNames()
	if err != nil {
		return fmt.Errorf("failed to list decks: %w", err)
	}
	modelNames, err := l.collection.ModelNames()
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}

	sort.Strings(decks)
	sort.Strings(modelNames)

	fmt.Fprintln(w, "Decks:")
	for _, deck := range decks {
		fmt.Fprintf(w, "  %s\n", deck)
	}
	fmt.Fprintln(w, "\nNote models:")
	for _, model := range modelNames {
		fmt.Fprintf(w, "  %s\n", model)
	}

	return nil
}
