// Package keys resolves API keys from the environment or the OS keyring.
package keys

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/manash/image-gen/internal/apperr"
)

// ServiceName is the keyring service all keys are stored under.
const ServiceName = "image-gen"

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrEmptyKey        = errors.New("API key is empty")
	ErrNotFound        = errors.New("no key stored")
)

// Provider names a credential and the environment variable that overrides it.
type Provider struct {
	Name   string
	EnvVar string
}

var Providers = []Provider{
	{Name: "openrouter", EnvVar: "OPENROUTER_API_KEY"},
	{Name: "openai", EnvVar: "OPENAI_API_KEY"},
	{Name: "gemini", EnvVar: "GEMINI_API_KEY"},
}

func Lookup(name string) (Provider, error) {
	for _, p := range Providers {
		if p.Name == strings.ToLower(name) {
			return p, nil
		}
	}
	names := make([]string, len(Providers))
	for i, p := range Providers {
		names[i] = p.Name
	}
	return Provider{}, fmt.Errorf("%w %q (want one of %s)", ErrUnknownProvider, name, strings.Join(names, ", "))
}

// Store keeps keys in the OS keyring.
type Store struct {
	service string
}

func NewStore() *Store {
	return &Store{service: ServiceName}
}

func (s *Store) Set(provider, key string) error {
	p, err := Lookup(provider)
	if err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyKey
	}
	if err := keyring.Set(s.service, p.Name, key); err != nil {
		return fmt.Errorf("failed to store key in keyring: %w", err)
	}
	return nil
}

// Get returns the stored key, or "" when none is stored.
func (s *Store) Get(provider string) (string, error) {
	p, err := Lookup(provider)
	if err != nil {
		return "", err
	}
	key, err := keyring.Get(s.service, p.Name)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read keyring: %w", err)
	}
	return key, nil
}

func (s *Store) Delete(provider string) error {
	p, err := Lookup(provider)
	if err != nil {
		return err
	}
	err = keyring.Delete(s.service, p.Name)
	if errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w for %s", ErrNotFound, p.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to delete key from keyring: %w", err)
	}
	return nil
}

// List returns the providers that have a key in the keyring.
func (s *Store) List() ([]string, error) {
	var stored []string
	for _, p := range Providers {
		key, err := s.Get(p.Name)
		if err != nil {
			return nil, err
		}
		if key != "" {
			stored = append(stored, p.Name)
		}
	}
	return stored, nil
}

// MaskKey returns a masked version of the key for display
func MaskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// Resolver finds a key for a provider: environment first, then keyring.
type Resolver struct {
	store  *Store
	getenv func(string) string
}

func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store, getenv: os.Getenv}
}

// WithGetenv replaces the environment lookup.
func (r *Resolver) WithGetenv(getenv func(string) string) *Resolver {
	r.getenv = getenv
	return r
}

// Resolve returns the key and a description of where it came from. A
// missing key is a configuration error.
func (r *Resolver) Resolve(provider string) (key, source string, err error) {
	p, err := Lookup(provider)
	if err != nil {
		return "", "", apperr.New(apperr.KindConfiguration, "keys", err)
	}

	if v := strings.TrimSpace(r.getenv(p.EnvVar)); v != "" {
		return v, "environment variable (" + p.EnvVar + ")", nil
	}

	if r.store != nil {
		// an unavailable keyring is treated like an empty one
		if stored, err := r.store.Get(p.Name); err == nil && stored != "" {
			return stored, "OS keyring", nil
		}
	}

	return "", "", apperr.Configuration("%s not set: export it or run 'image-gen keys set %s'", p.EnvVar, p.Name)
}
