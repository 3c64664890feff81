// Package slug derives URL-safe workspace identifiers from an email or name.
package slug

import (
	"crypto/rand"
	"errors"
	"io"
	"regexp"
	"strings"
)

const (
	DefaultMaxLength    = 20
	DefaultSuffixLength = 4
	DefaultFallback     = "workspace"

	suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	// largest multiple of len(suffixAlphabet) below 256, bytes above it are
	// rejected to keep the suffix uniform.
	suffixCutoff = 252
)

var (
	ErrEmptySlug = errors.New("slug cannot be empty")
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
)

// Slugify lower-cases input and collapses every run of non alphanumeric
// characters into a single "-". fallback is used when input yields nothing.
func Slugify(input, fallback string) (string, error) {
	slug := slugify(input)
	if slug == "" {
		slug = slugify(fallback)
	}
	if slug == "" {
		return "", ErrEmptySlug
	}
	return slug, nil
}

func slugify(s string) string {
	lower := strings.ToLower(strings.TrimSpace(s))
	slug := nonSlugChars.ReplaceAllString(lower, "-")
	return strings.Trim(slug, "-")
}

// Generator produces "<base>-<suffix>" slugs where base is derived from a
// seed and suffix is random, so no uniqueness round-trip is needed.
type Generator struct {
	random    io.Reader
	maxLength int
	suffixLen int
	fallback  string
}

// Option configures a Generator
type Option func(*Generator)

// WithRandom sets the source for the disambiguation suffix.
func WithRandom(r io.Reader) Option {
	return func(g *Generator) {
		if r != nil {
			g.random = r
		}
	}
}

// WithMaxLength bounds the human readable portion.
func WithMaxLength(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxLength = n
		}
	}
}

// WithSuffixLength sets the number of random characters.
func WithSuffixLength(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.suffixLen = n
		}
	}
}

// WithFallback sets the base used when the seed has no usable characters.
func WithFallback(fallback string) Option {
	return func(g *Generator) {
		if slugify(fallback) != "" {
			g.fallback = fallback
		}
	}
}

// New returns a Generator backed by crypto/rand unless overridden.
func New(opts ...Option) *Generator {
	g := &Generator{
		random:    rand.Reader,
		maxLength: DefaultMaxLength,
		suffixLen: DefaultSuffixLength,
		fallback:  DefaultFallback,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Generate derives a slug from seed. Anything after "@" is dropped so an
// email contributes only its local part.
func (g *Generator) Generate(seed string) (string, error) {
	if at := strings.Index(seed, "@"); at >= 0 {
		seed = seed[:at]
	}

	base, err := Slugify(seed, g.fallback)
	if err != nil {
		return "", err
	}
	base = truncate(base, g.maxLength)

	suffix, err := g.suffix()
	if err != nil {
		return "", err
	}
	return base + "-" + suffix, nil
}

func (g *Generator) suffix() (string, error) {
	out := make([]byte, 0, g.suffixLen)
	buf := make([]byte, g.suffixLen*2)
	for len(out) < g.suffixLen {
		if _, err := io.ReadFull(g.random, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= suffixCutoff {
				continue
			}
			out = append(out, suffixAlphabet[int(b)%len(suffixAlphabet)])
			if len(out) == g.suffixLen {
				break
			}
		}
	}
	return string(out), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimRight(s[:n], "-")
}
