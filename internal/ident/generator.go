// Package ident drafts and assembles capture identifiers.
//
// An identifier is a fixed 30-character string:
//
//	prefix(1) + run number(2) + url code(2) + UTC timestamp(14) + salt(8) + sequence(3)
//
// The prefix, run number, timestamp, and salt are fixed when the draft is
// created; the url code and sequence are bound later, inside the local
// store's commit transaction, so that a failed commit retains no counter
// state.
package ident

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/pagevault/pagevault/internal/capture"
)

// OverflowPolicy decides what happens when a sequence counter passes 999.
type OverflowPolicy string

// Supported overflow policies.
const (
	// OverflowError aborts the event with an IdentifierRangeError.
	OverflowError OverflowPolicy = "error"
	// OverflowSaturate caps the sequence component at 999. Identifier
	// uniqueness then rests on the timestamp and salt alone.
	OverflowSaturate OverflowPolicy = "saturate"
)

// Valid reports whether p is a known policy.
func (p OverflowPolicy) Valid() bool {
	return p == OverflowError || p == OverflowSaturate
}

const (
	saltAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	saltLength   = 8

	maxRunSlot  = 9
	maxSequence = 999

	manualRunNumber = "99"
)

// PrefixFlipper persists the alternating manual prefix state.
type PrefixFlipper interface {
	FlipManualPrefix(ctx context.Context) (byte, error)
}

// Config controls Generator behavior.
type Config struct {
	OverflowPolicy OverflowPolicy
}

// Generator builds identifier drafts for scrape events.
type Generator struct {
	clock    capture.Clock
	prefixes PrefixFlipper
	policy   OverflowPolicy
	randByte func(n int) int
}

// New constructs a Generator. prefixes supplies the persisted manual
// prefix state; clock supplies the identifier timestamp.
func New(clock capture.Clock, prefixes PrefixFlipper, cfg Config) (*Generator, error) {
	policy := cfg.OverflowPolicy
	if policy == "" {
		policy = OverflowError
	}
	if !policy.Valid() {
		return nil, fmt.Errorf("unknown overflow policy %q", policy)
	}
	return &Generator{
		clock:    clock,
		prefixes: prefixes,
		policy:   policy,
		randByte: rand.IntN,
	}, nil
}

// DraftScheduled drafts an identifier for a scheduled scrape. runSlot is
// the 1-based index of the matched schedule time within its category; only
// slots 1 through 9 are representable.
func (g *Generator) DraftScheduled(category capture.Category, runSlot int) (*Draft, error) {
	var prefix byte
	switch category {
	case capture.CategoryPrimary:
		prefix = 'P'
	case capture.CategoryBackup:
		prefix = 'B'
	default:
		return nil, fmt.Errorf("category %q is not schedulable", category)
	}
	if runSlot < 1 || runSlot > maxRunSlot {
		return nil, &capture.IdentifierRangeError{Field: "run slot", Value: runSlot}
	}
	return g.draft(prefix, fmt.Sprintf("%02d", runSlot)), nil
}

// DraftManual drafts an identifier for a manual scrape. The prefix
// alternates between T and M across manual runs; the flip is persisted
// before the draft is returned. The run number is fixed at 99.
func (g *Generator) DraftManual(ctx context.Context) (*Draft, error) {
	prefix, err := g.prefixes.FlipManualPrefix(ctx)
	if err != nil {
		return nil, fmt.Errorf("flip manual prefix: %w", err)
	}
	return g.draft(prefix, manualRunNumber), nil
}

func (g *Generator) draft(prefix byte, runNumber string) *Draft {
	return &Draft{
		prefix:    prefix,
		runNumber: runNumber,
		timestamp: g.clock.Now().UTC().Format("20060102150405"),
		salt:      g.salt(),
		policy:    g.policy,
	}
}

// Collision avoidance only; cryptographic strength is not required.
func (g *Generator) salt() string {
	var b strings.Builder
	b.Grow(saltLength)
	for range saltLength {
		b.WriteByte(saltAlphabet[g.randByte(len(saltAlphabet))])
	}
	return b.String()
}

// Draft is an identifier with its prefix, run number, timestamp, and salt
// fixed, awaiting a url code and sequence. It implements capture.Assembler.
type Draft struct {
	prefix    byte
	runNumber string
	timestamp string
	salt      string
	policy    OverflowPolicy
}

// Prefix returns the prefix character, which keys the sequence counter
// together with the url code.
func (d *Draft) Prefix() byte { return d.prefix }

// Assemble produces the final 30-character identifier.
func (d *Draft) Assemble(urlCode string, seq int) (string, error) {
	if len(urlCode) != 2 || !isUpperAlpha(urlCode) {
		return "", fmt.Errorf("url code %q must be two uppercase letters", urlCode)
	}
	if seq < 1 {
		return "", &capture.IdentifierRangeError{Field: "sequence", Value: seq}
	}
	if seq > maxSequence {
		if d.policy == OverflowError {
			return "", fmt.Errorf("%w: (%s, %c) at %d", capture.ErrSequenceExhausted, urlCode, d.prefix, seq)
		}
		seq = maxSequence
	}
	return fmt.Sprintf("%c%s%s%s%s%03d", d.prefix, d.runNumber, urlCode, d.timestamp, d.salt, seq), nil
}

func isUpperAlpha(s string) bool {
	for i := range len(s) {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}
