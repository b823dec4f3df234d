// ABOUTME: Flat-file JSON document store for wisp-cms site data
// ABOUTME: Handles lazy creation, typed get/set, and whole-document persistence

package store

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrNotFound is returned when a requested section or key does not exist.
var ErrNotFound = errors.New("not found")

// ErrCorrupt is returned when the backing file exists but cannot be parsed.
// Callers must treat this as fatal for the request; falling back to defaults
// would silently discard the admin's data.
var ErrCorrupt = errors.New("store file is corrupt")

// Top-level document sections. Every persisted document contains all three.
const (
	SectionConfig = "config"
	SectionPages  = "pages"
	SectionBlocks = "blocks"
)

// Config keys managed by this core.
const (
	KeyPassword  = "password"  // bcrypt hash of the admin password
	KeyLogin     = "login"     // randomized slug serving as the login page address
	KeySiteTitle = "siteTitle" // displayed site title
	KeyTheme     = "theme"     // active theme name
)

// DefaultHomeSlug is the page that must exist after store creation.
const DefaultHomeSlug = "home"

// Document is the in-memory form of the persisted file: three named
// sections, each a flat key/value mapping.
type Document map[string]map[string]any

// Store owns the single persisted document. All access goes through Get/Set
// so every mutation is written through to disk immediately.
//
// Writes serialize the complete document and overwrite the file in place.
// A process-local mutex serializes concurrent requests within this process;
// two separate processes writing the same file can still race, which is an
// accepted limitation for a single-admin tool.
type Store struct {
	mu     sync.Mutex
	path   string
	doc    Document
	logger *slog.Logger

	// initialPassword holds the generated plaintext admin password when this
	// Store seeded a fresh document, so the CLI can show it exactly once.
	// Empty when the file already existed.
	initialPassword string
}

// Open loads the document at path, creating it with seeded defaults if the
// file does not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{
		path:   path,
		logger: slog.Default().With("component", "store"),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// load reads the backing file into memory, or synthesizes and persists a
// default document when the file is absent.
func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s.createLocked()
		}
		return fmt.Errorf("reading store file: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}

	s.doc = doc
	return nil
}

// createLocked seeds a fresh document and persists it. Caller holds s.mu.
func (s *Store) createLocked() error {
	password, err := GeneratePassword()
	if err != nil {
		return fmt.Errorf("generating admin password: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing admin password: %w", err)
	}

	s.doc = Document{
		SectionConfig: {
			KeySiteTitle: "Website",
			KeyTheme:     "default",
			KeyPassword:  string(hash),
			KeyLogin:     generateLoginSlug(),
		},
		SectionPages: {
			DefaultHomeSlug: map[string]any{
				"title":       "Home",
				"keywords":    "Enter, page, keywords, for, search, engines",
				"description": "A page description is also good for search engines.",
				"content":     "Your homepage content goes here.",
			},
		},
		SectionBlocks: {
			"subside": map[string]any{
				"content": "About your website.",
			},
			"footer": map[string]any{
				"content": "Powered by wisp-cms",
			},
		},
	}
	s.initialPassword = password

	if err := s.persistLocked(); err != nil {
		return err
	}

	s.logger.Info("created new store", "path", s.path)
	return nil
}

// persistLocked serializes the whole document and overwrites the backing
// file. Caller holds s.mu. There is no partial write path; durability of a
// half-finished write relies on the filesystem handling one small file.
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.doc, "", "\t")
	if err != nil {
		return fmt.Errorf("serializing store: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing store file: %w", err)
	}
	return nil
}

// Path returns the location of the backing file.
func (s *Store) Path() string {
	return s.path
}

// InitialPassword returns the generated plaintext admin password when Open
// created a fresh store, and the empty string otherwise. Intended for the
// one-time printout during install.
func (s *Store) InitialPassword() string {
	return s.initialPassword
}

// Get returns the value stored at section.key. Returns ErrNotFound when the
// section or key is absent; callers treat that as "use default" for optional
// fields.
func (s *Store) Get(section, key string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec, ok := s.doc[section]
	if !ok {
		return nil, fmt.Errorf("%w: section %q", ErrNotFound, section)
	}
	value, ok := sec[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrNotFound, section, key)
	}
	return value, nil
}

// GetString is Get for string-valued keys. Non-string values fail with
// ErrNotFound so callers have a single miss path.
func (s *Store) GetString(section, key string) (string, error) {
	value, err := s.Get(section, key)
	if err != nil {
		return "", err
	}
	str, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s.%s is not a string", ErrNotFound, section, key)
	}
	return str, nil
}

// Set stores value at section.key, creating the section if needed, and
// persists the entire document before returning.
func (s *Store) Set(section, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil {
		s.doc = Document{}
	}
	if s.doc[section] == nil {
		s.doc[section] = map[string]any{}
	}
	s.doc[section][key] = value

	return s.persistLocked()
}

// Delete removes section.key and persists. Deleting a missing key is a
// no-op that still reports success.
func (s *Store) Delete(section, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec, ok := s.doc[section]
	if !ok {
		return nil
	}
	if _, ok := sec[key]; !ok {
		return nil
	}
	delete(sec, key)

	return s.persistLocked()
}

// Keys returns the keys present in a section, or ErrNotFound for an unknown
// section.
func (s *Store) Keys(section string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec, ok := s.doc[section]
	if !ok {
		return nil, fmt.Errorf("%w: section %q", ErrNotFound, section)
	}
	keys := make([]string, 0, len(sec))
	for k := range sec {
		keys = append(keys, k)
	}
	return keys, nil
}

// generateLoginSlug derives a randomized, URL-safe login page address.
// The slug is never the literal "login", so the login form's location acts
// as a secondary secret.
func generateLoginSlug() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// GeneratePassword creates a random plaintext password, used when seeding a
// fresh install and by the reset-password command.
func GeneratePassword() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
