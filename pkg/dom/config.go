package dom

const (
	DefaultContainmentThreshold = 0.95
	DefaultOcclusionThreshold   = 0.95
	// DefaultViewportExpansion disables viewport clipping: anything on the
	// page can be scrolled into view.
	DefaultViewportExpansion = -1
)

// Config holds the tunable thresholds of the filter pipeline.
type Config struct {
	// ContainmentThreshold is the share of a descendant's box that must lie
	// inside a propagating ancestor before the descendant is pruned.
	ContainmentThreshold float64 `json:"containment_threshold" yaml:"containment_threshold"`
	// OcclusionThreshold is the share of a node's box an opaque later
	// painter must cover to hide it.
	OcclusionThreshold float64 `json:"occlusion_threshold" yaml:"occlusion_threshold"`
	// ViewportExpansion, when >= 0, clips nodes to the viewport grown by
	// that many pixels.
	ViewportExpansion float64 `json:"viewport_expansion" yaml:"viewport_expansion"`

	Detectors []Detector `json:"-" yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		ContainmentThreshold: DefaultContainmentThreshold,
		OcclusionThreshold:   DefaultOcclusionThreshold,
		ViewportExpansion:    DefaultViewportExpansion,
		Detectors:            DefaultDetectors(),
	}
}

// withDefaults fills unset thresholds and detectors. A zero
// ViewportExpansion is a valid setting and is left alone.
func (c Config) withDefaults() Config {
	if c.ContainmentThreshold <= 0 {
		c.ContainmentThreshold = DefaultContainmentThreshold
	}
	if c.OcclusionThreshold <= 0 {
		c.OcclusionThreshold = DefaultOcclusionThreshold
	}
	if c.Detectors == nil {
		c.Detectors = DefaultDetectors()
	}
	return c
}
