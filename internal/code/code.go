// Package code generates the short human-shareable codes attached to
// photographies and picks unused ones.
package code

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// ErrExhausted is returned by PickCode when maxAttempts draws produced no usable code.
var ErrExhausted = errors.New("no unused code found")

type Generator interface {
	Generate(length int) (string, error)
}

// RandomGenerator draws every character uniformly from Alphabet using crypto/rand.
type RandomGenerator struct{}

func (RandomGenerator) Generate(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid code length %d", length)
	}
	max := big.NewInt(int64(len(Alphabet)))
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random source: %w", err)
		}
		b.WriteByte(Alphabet[n.Int64()])
	}
	return b.String(), nil
}

// Set is a case-insensitive set of codes.
type Set map[string]struct{}

func NewSet(codes ...string) Set {
	s := make(Set, len(codes))
	for _, c := range codes {
		s.Add(c)
	}
	return s
}

func (s Set) Add(code string) { s[strings.ToUpper(code)] = struct{}{} }

func (s Set) Has(code string) bool {
	_, ok := s[strings.ToUpper(code)]
	return ok
}

func (s Set) Len() int { return len(s) }

// Union returns a new set holding the members of s and every other set.
func (s Set) Union(others ...Set) Set {
	out := make(Set, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	for _, o := range others {
		for k := range o {
			out[k] = struct{}{}
		}
	}
	return out
}

var defaultBanned = []string{
	"ASS", "CUM", "DIC", "DIK", "FAG", "FUC", "FUK", "FCK", "GAY", "JIZ",
	"KKK", "KYS", "NAZ", "NIG", "PIS", "POO", "PUS", "SEX", "SHT", "STD",
	"TIT", "WTF", "XXX",
}

// DefaultBanned returns the built-in denylist plus any extra codes.
func DefaultBanned(extra ...string) Set {
	s := NewSet(defaultBanned...)
	for _, c := range extra {
		if c = strings.TrimSpace(c); c != "" {
			s.Add(c)
		}
	}
	return s
}

// PickCode draws candidates until one is not in exclusions. It gives up with
// ErrExhausted after maxAttempts draws.
func PickCode(exclusions Set, draw func() (string, error), maxAttempts int) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate, err := draw()
		if err != nil {
			return "", err
		}
		if !exclusions.Has(candidate) {
			return candidate, nil
		}
	}
	return "", ErrExhausted
}
