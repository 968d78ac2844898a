package browser

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// tokenCounter loads its encoding on first use. A load failure disables
// counting for the life of the counter.
type tokenCounter struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	logger   *slog.Logger
}

func newTokenCounter(encoding string) *tokenCounter {
	return &tokenCounter{encoding: encoding, logger: slog.Default()}
}

func (c *tokenCounter) count(text string) int {
	if c == nil || text == "" {
		return 0
	}
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding(c.encoding)
		if err != nil {
			c.logger.Warn("token counting disabled", "encoding", c.encoding, "error", err)
			return
		}
		c.enc = enc
	})
	if c.enc == nil {
		return 0
	}
	return len(c.enc.EncodeOrdinary(text))
}
