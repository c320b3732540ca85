package invoice

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"invoices/internal/logger"
)

// SequenceConfig controls the shape of allocated invoice numbers.
type SequenceConfig struct {
	// Prefix precedes the numeric part, e.g. "INV-".
	Prefix string

	// Base is the first number handed out when no numbered invoice exists.
	Base int64
}

// DefaultSequenceConfig returns the INV-1001 numbering scheme.
func DefaultSequenceConfig() SequenceConfig {
	return SequenceConfig{
		Prefix: "INV-",
		Base:   1001,
	}
}

// Sequence derives invoice numbers from the store's current contents.
//
// Allocation alone does not reserve a number. Callers must persist through a
// store that rejects duplicates and allocate again on ErrNumberTaken; Engine.Create
// does exactly that.
type Sequence struct {
	store  Store
	config SequenceConfig
	log    zerolog.Logger
}

// NewSequence creates a Sequence over store.
func NewSequence(store Store, config SequenceConfig) *Sequence {
	if config.Prefix == "" {
		config.Prefix = DefaultSequenceConfig().Prefix
	}
	if config.Base < 1 {
		config.Base = DefaultSequenceConfig().Base
	}
	return &Sequence{
		store:  store,
		config: config,
		log:    logger.WithComponent("sequence"),
	}
}

// Allocate returns candidate when it is free, or the next number after the
// current maximum when candidate is empty.
func (s *Sequence) Allocate(ctx context.Context, candidate string) (string, error) {
	const op = "Allocate"

	candidate = strings.TrimSpace(candidate)
	if candidate != "" {
		if _, ok := s.Parse(candidate); !ok {
			return "", NewValidationError("invoice_number", candidate,
				fmt.Sprintf("must have the form %s<digits>", s.config.Prefix))
		}
		taken, err := s.store.NumberTaken(ctx, candidate)
		if err != nil {
			return "", wrapStore(op, err)
		}
		if taken {
			return "", Conflict(op, candidate, nil)
		}
		s.log.Debug().Str("invoice_number", candidate).Msg("Using caller-supplied invoice number")
		return candidate, nil
	}

	latest, ok, err := s.store.LatestNumber(ctx, s.config.Prefix)
	if err != nil {
		return "", wrapStore(op, err)
	}

	next := s.config.Base
	if ok && latest+1 > next {
		next = latest + 1
	}

	number := s.Format(next)
	s.log.Debug().
		Int64("latest", latest).
		Bool("found", ok).
		Str("invoice_number", number).
		Msg("Allocated invoice number")
	return number, nil
}

// Format renders n with the configured prefix.
func (s *Sequence) Format(n int64) string {
	return s.config.Prefix + strconv.FormatInt(n, 10)
}

// Parse extracts the numeric part of a canonical invoice number.
func (s *Sequence) Parse(number string) (int64, bool) {
	return ParseNumber(s.config.Prefix, number)
}

// ParseNumber extracts n from "<prefix><n>". Only ASCII digits are accepted.
func ParseNumber(prefix, number string) (int64, bool) {
	digits, found := strings.CutPrefix(number, prefix)
	if !found || digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
