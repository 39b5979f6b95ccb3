package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Keys under which the loader settings are stored.
const (
	KeyURLs      = "automata.urls"
	KeyBlacklist = "automata.blacklist"
)

// Settings reads and writes the URL list and blacklist as JSON arrays.
// Absent keys read as empty lists.
type Settings struct {
	store Store
}

// NewSettings wraps s.
func NewSettings(s Store) *Settings {
	return &Settings{store: s}
}

// URLs returns the configured package source URLs in order.
func (s *Settings) URLs(ctx context.Context) ([]string, error) {
	return s.list(ctx, KeyURLs)
}

// SetURLs overwrites the stored URL list.
func (s *Settings) SetURLs(ctx context.Context, urls []string) error {
	return s.setList(ctx, KeyURLs, urls)
}

// Blacklist returns the names of automata the loader must skip.
func (s *Settings) Blacklist(ctx context.Context) ([]string, error) {
	return s.list(ctx, KeyBlacklist)
}

// SetBlacklist overwrites the stored blacklist.
func (s *Settings) SetBlacklist(ctx context.Context, names []string) error {
	return s.setList(ctx, KeyBlacklist, names)
}

// SeedURLs writes urls only when no URL list has been stored yet.
// It reports whether the list was written.
func (s *Settings) SeedURLs(ctx context.Context, urls []string) (bool, error) {
	_, ok, err := s.store.Get(ctx, KeyURLs)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	if err := s.SetURLs(ctx, urls); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Settings) list(ctx context.Context, key string) ([]string, error) {
	raw, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func (s *Settings) setList(ctx context.Context, key string, values []string) error {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return s.store.Set(ctx, key, string(data))
}
