// Package content provides the content catalog the unlock engine consults.
//
// A Library is a static snapshot of the books on offer: how many chapters
// each has and what a paid chapter costs. It implements
// ledger.ContentCatalog. Like the package catalog it is built once at
// startup (see factory) and never mutated.
package content

import (
	"context"
	"sort"
)

// Book describes one content item: a chaptered work with a flat per-chapter
// credit cost.
type Book struct {
	ID           string
	Title        string
	ChapterCount int
	ChapterCost  int64
}

// Library is an immutable lookup over books.
type Library struct {
	books map[string]Book
}

// NewLibrary builds a library from the given books. Later duplicates of an
// id override earlier ones.
func NewLibrary(books ...Book) *Library {
	l := &Library{books: make(map[string]Book, len(books))}
	for _, b := range books {
		l.books[b.ID] = b
	}
	return l
}

// UnitCost implements ledger.ContentCatalog. ok is false when the book is
// unknown or the chapter number is out of range.
func (l *Library) UnitCost(_ context.Context, contentID string, unitNumber int) (int64, bool, error) {
	b, ok := l.books[contentID]
	if !ok || unitNumber < 1 || unitNumber > b.ChapterCount {
		return 0, false, nil
	}
	return b.ChapterCost, true, nil
}

// Book returns the book under id.
func (l *Library) Book(id string) (Book, bool) {
	b, ok := l.books[id]
	return b, ok
}

// List returns all books ordered by id.
func (l *Library) List() []Book {
	out := make([]Book, 0, len(l.books))
	for _, b := range l.books {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
