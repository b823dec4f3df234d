// ABOUTME: Typed page and block accessors over the generic document store
// ABOUTME: Pages carry title/keywords/description/content, blocks only content

package store

import (
	"encoding/json"
	"fmt"
)

// Page is a single site page addressed by its slug.
type Page struct {
	Title       string `json:"title"`
	Keywords    string `json:"keywords"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

// Block is a reusable content fragment addressed by its slug.
type Block struct {
	Content string `json:"content"`
}

// Page returns the page stored under slug, or ErrNotFound.
func (s *Store) Page(slug string) (*Page, error) {
	value, err := s.Get(SectionPages, slug)
	if err != nil {
		return nil, err
	}
	var page Page
	if err := decodeInto(value, &page); err != nil {
		return nil, fmt.Errorf("decoding page %q: %w", slug, err)
	}
	return &page, nil
}

// SetPage stores a page under slug and persists the document.
func (s *Store) SetPage(slug string, page *Page) error {
	return s.Set(SectionPages, slug, map[string]any{
		"title":       page.Title,
		"keywords":    page.Keywords,
		"description": page.Description,
		"content":     page.Content,
	})
}

// DeletePage removes the page stored under slug. The home page cannot be
// deleted; the document invariant requires it to exist.
func (s *Store) DeletePage(slug string) error {
	if slug == DefaultHomeSlug {
		return fmt.Errorf("cannot delete the %q page", DefaultHomeSlug)
	}
	return s.Delete(SectionPages, slug)
}

// Block returns the content fragment stored under slug, or ErrNotFound.
func (s *Store) Block(slug string) (*Block, error) {
	value, err := s.Get(SectionBlocks, slug)
	if err != nil {
		return nil, err
	}
	var block Block
	if err := decodeInto(value, &block); err != nil {
		return nil, fmt.Errorf("decoding block %q: %w", slug, err)
	}
	return &block, nil
}

// SetBlock stores a content fragment under slug and persists the document.
func (s *Store) SetBlock(slug string, block *Block) error {
	return s.Set(SectionBlocks, slug, map[string]any{
		"content": block.Content,
	})
}

// decodeInto converts a generic document value into a typed struct. Values
// arrive either as map[string]any (fresh sets and reloaded JSON both decode
// that way), so a JSON round-trip is the uniform conversion.
func decodeInto(value any, target any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}
