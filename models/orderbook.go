package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// DepthLimit is the number of levels kept on each side of a book.
const DepthLimit = 10

// ErrMalformedSnapshot marks a snapshot whose shape is inconsistent with the
// normalized order book contract. Such snapshots are dropped, never merged.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

// SourceID identifies the exchange that produced a level or a snapshot.
type SourceID uint8

const (
	SourceUnknown SourceID = iota
	SourceBinance
	SourceBitstamp
	SourceBybit
)

var sourceNames = map[SourceID]string{
	SourceBinance:  "binance",
	SourceBitstamp: "bitstamp",
	SourceBybit:    "bybit",
}

// String returns the exchange name published to subscribers.
func (s SourceID) String() string {
	if name, ok := sourceNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText renders the source by name in JSON payloads.
func (s SourceID) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the exchange names produced by MarshalText.
func (s *SourceID) UnmarshalText(text []byte) error {
	id, ok := ParseSourceID(string(text))
	if !ok {
		return fmt.Errorf("unknown exchange %q", string(text))
	}
	*s = id
	return nil
}

// ParseSourceID resolves an exchange name back to its identifier.
func ParseSourceID(name string) (SourceID, bool) {
	for id, n := range sourceNames {
		if n == name {
			return id, true
		}
	}
	return SourceUnknown, false
}

// Level represents a single price level attributed to one exchange.
type Level struct {
	Source   SourceID `json:"exchange"`
	Price    float64  `json:"price"`
	Quantity float64  `json:"amount"`
}

// OrderBook holds bids (best first, descending) and asks (best first,
// ascending). Spread is asks[0]-bids[0] when both sides have data, else 0.
type OrderBook struct {
	Spread float64 `json:"spread"`
	Bids   []Level `json:"bids"`
	Asks   []Level `json:"asks"`
}

// Clone returns a deep copy so the result can be handed to another goroutine.
func (ob OrderBook) Clone() OrderBook {
	out := OrderBook{Spread: ob.Spread}
	if ob.Bids != nil {
		out.Bids = append(make([]Level, 0, len(ob.Bids)), ob.Bids...)
	}
	if ob.Asks != nil {
		out.Asks = append(make([]Level, 0, len(ob.Asks)), ob.Asks...)
	}
	return out
}

// BestBid returns the top bid and whether the bid side has data.
func (ob OrderBook) BestBid() (Level, bool) {
	if len(ob.Bids) == 0 {
		return Level{}, false
	}
	return ob.Bids[0], true
}

// BestAsk returns the top ask and whether the ask side has data.
func (ob OrderBook) BestAsk() (Level, bool) {
	if len(ob.Asks) == 0 {
		return Level{}, false
	}
	return ob.Asks[0], true
}

// Snapshot is the normalized event an exchange source emits. It fully
// replaces whatever was previously known for Source.
type Snapshot struct {
	Source     SourceID
	Symbol     string
	Book       OrderBook
	ReceivedAt time.Time
}

// Validate checks the snapshot against the normalized book contract. The
// returned error wraps ErrMalformedSnapshot.
func (s Snapshot) Validate(depth int) error {
	if s.Source == SourceUnknown {
		return fmt.Errorf("%w: missing source", ErrMalformedSnapshot)
	}
	if len(s.Book.Bids) > depth {
		return fmt.Errorf("%w: %d bids exceed depth %d", ErrMalformedSnapshot, len(s.Book.Bids), depth)
	}
	if len(s.Book.Asks) > depth {
		return fmt.Errorf("%w: %d asks exceed depth %d", ErrMalformedSnapshot, len(s.Book.Asks), depth)
	}
	if err := validateSide(s.Source, "bid", s.Book.Bids, func(prev, cur float64) bool { return cur <= prev }); err != nil {
		return err
	}
	return validateSide(s.Source, "ask", s.Book.Asks, func(prev, cur float64) bool { return cur >= prev })
}

func validateSide(source SourceID, side string, levels []Level, ordered func(prev, cur float64) bool) error {
	for i, lvl := range levels {
		if lvl.Source != source {
			return fmt.Errorf("%w: %s level %d attributed to %s, snapshot from %s", ErrMalformedSnapshot, side, i, lvl.Source, source)
		}
		if math.IsNaN(lvl.Price) || math.IsInf(lvl.Price, 0) || lvl.Price <= 0 {
			return fmt.Errorf("%w: %s level %d has invalid price %v", ErrMalformedSnapshot, side, i, lvl.Price)
		}
		if math.IsNaN(lvl.Quantity) || math.IsInf(lvl.Quantity, 0) || lvl.Quantity < 0 {
			return fmt.Errorf("%w: %s level %d has invalid quantity %v", ErrMalformedSnapshot, side, i, lvl.Quantity)
		}
		if i > 0 && !ordered(levels[i-1].Price, lvl.Price) {
			return fmt.Errorf("%w: %s side out of order at level %d", ErrMalformedSnapshot, side, i)
		}
	}
	return nil
}
