package browser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nextlevelbuilder/pagelens/pkg/dom"
	"github.com/nextlevelbuilder/pagelens/pkg/identity"
)

const defaultMaxRefStoreSize = 50

// ErrNoRecord is returned by a RecordStore that holds nothing for a tab.
var ErrNoRecord = errors.New("no identity record")

// RefRecord is what survives a snapshot: the indices handed to the caller
// and the identities behind them.
type RefRecord struct {
	TargetID     string               `json:"targetId"`
	ExtractionID string               `json:"extractionId"`
	URL          string               `json:"url"`
	Selectors    dom.SelectorMap      `json:"selectors"`
	Identities   identity.IdentityMap `json:"identities"`
	CreatedAt    time.Time            `json:"createdAt"`
}

// Handle returns the identity recorded for index.
func (r *RefRecord) Handle(index int) (identity.Handle, bool) {
	h, ok := r.Identities[index]
	return h, ok
}

// RecordStore keeps the latest RefRecord per tab.
type RecordStore interface {
	Save(ctx context.Context, rec *RefRecord) error
	// Load returns ErrNoRecord (possibly wrapped) when nothing is stored.
	Load(ctx context.Context, targetID string) (*RefRecord, error)
	Delete(ctx context.Context, targetID string) error
}

// RefStore is an in-process RecordStore that evicts the least recently
// used tab once full.
type RefStore struct {
	cache *lru.Cache[string, *RefRecord]
}

// NewRefStore creates a RefStore holding up to size tabs.
func NewRefStore(size int) *RefStore {
	if size <= 0 {
		size = defaultMaxRefStoreSize
	}
	cache, err := lru.New[string, *RefRecord](size)
	if err != nil {
		// Only reachable with a non-positive size.
		panic(err)
	}
	return &RefStore{cache: cache}
}

func (rs *RefStore) Save(_ context.Context, rec *RefRecord) error {
	rs.cache.Add(rec.TargetID, rec)
	return nil
}

func (rs *RefStore) Load(_ context.Context, targetID string) (*RefRecord, error) {
	rec, ok := rs.cache.Get(targetID)
	if !ok {
		return nil, fmt.Errorf("%w for tab %s", ErrNoRecord, targetID)
	}
	return rec, nil
}

func (rs *RefStore) Delete(_ context.Context, targetID string) error {
	rs.cache.Remove(targetID)
	return nil
}

// Len reports how many tabs have a record.
func (rs *RefStore) Len() int { return rs.cache.Len() }

var indexPattern = regexp.MustCompile(`^\d+$`)

// ParseIndex accepts "3", "[3]", "@3" and "index=3".
func ParseIndex(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(s, "@"):
		s = s[1:]
	case strings.HasPrefix(s, "index="):
		s = s[len("index="):]
	case strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"):
		s = s[1 : len(s)-1]
	}
	if !indexPattern.MatchString(s) {
		return 0, fmt.Errorf("invalid index %q", raw)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid index %q: %w", raw, err)
	}
	return n, nil
}
