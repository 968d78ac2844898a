package dom

import "github.com/google/uuid"

// Extract runs the full pipeline over raw: visibility, paint order,
// bounding-box propagation with compound detection, then serialization.
// Each call gets a fresh ExtractionID and its own index counter.
func Extract(raw *RawTree, cfg Config, opts Options) *Result {
	cfg = cfg.withDefaults()

	t := FilterVisibility(raw, cfg)
	t = FilterPaintOrder(t, cfg)
	t = FilterBoundingBox(t, cfg)

	res := Serialize(t, opts)
	res.ExtractionID = uuid.NewString()
	return res
}
