package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	// ErrEmptyPrefix is returned when the PREFIX file exists but holds no text.
	ErrEmptyPrefix = errors.New("prefix file is empty")
	// ErrInvalidPrefix is returned for prefixes that cannot appear in a
	// canonical name.
	ErrInvalidPrefix = errors.New("prefix may only contain letters, digits and underscores")
)

var prefixPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidatePrefix rejects prefixes that would break the dash-separated
// canonical name or escape its directory.
func ValidatePrefix(prefix string) error {
	if !prefixPattern.MatchString(prefix) {
		return fmt.Errorf("%w: %q", ErrInvalidPrefix, prefix)
	}
	return nil
}

// ReadPrefix reads the canonical name prefix from a plain-text file.
// Surrounding whitespace is ignored.
func ReadPrefix(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	prefix := strings.TrimSpace(string(data))
	if prefix == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyPrefix, path)
	}
	if err := ValidatePrefix(prefix); err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return prefix, nil
}

// EnsurePrefix writes value to path unless the file already exists.
func EnsurePrefix(path, value string) (bool, error) {
	if err := ValidatePrefix(value); err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.WriteFile(path, []byte(value+"\n"), 0o644); err != nil {
		return false, fmt.Errorf("failed to write prefix file: %w", err)
	}
	return true, nil
}
