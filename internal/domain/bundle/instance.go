package bundle

import "time"

// Instance is the persisted description of one per-instance directory.
type Instance struct {
	Name           string    `yaml:"name"`
	Base           Query     `yaml:"base"`
	Overlay        *Query    `yaml:"overlay,omitempty"`
	CreatedAt      time.Time `yaml:"created_at"`
	LastLaunchedAt time.Time `yaml:"last_launched_at,omitempty"`
}

// Clone returns a copy that does not share the overlay pointer.
func (i *Instance) Clone() *Instance {
	if i == nil {
		return nil
	}

	cloned := *i

	if i.Overlay != nil {
		overlay := *i.Overlay
		cloned.Overlay = &overlay
	}

	return &cloned
}
