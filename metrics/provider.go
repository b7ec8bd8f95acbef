// Package metrics defines the instruments a hashing pipeline records into.
//
// The pipeline only depends on Provider; plug in NewBasicProvider to inspect
// values in tests or NewNoopProvider (the default) to discard them.
package metrics

// Provider constructs named instruments. Asking twice for the same name returns
// the same instrument. Implementations must be safe for concurrent use.
type Provider interface {
	Counter(name string, opts ...InstrumentOption) Counter
	UpDownCounter(name string, opts ...InstrumentOption) UpDownCounter
	Histogram(name string, opts ...InstrumentOption) Histogram
}

// Counter records monotonic counts, e.g. blocks read.
type Counter interface {
	Add(n int64)
}

// UpDownCounter records a level that moves both ways, e.g. results pending in the window.
type UpDownCounter interface {
	Add(n int64)
}

// Histogram records a distribution of measurements, e.g. hashing time in seconds.
type Histogram interface {
	Record(v float64)
}

// InstrumentConfig carries advisory instrument metadata.
type InstrumentConfig struct {
	Description string
	Unit        string
}

// InstrumentOption mutates InstrumentConfig.
type InstrumentOption func(*InstrumentConfig)

// WithDescription sets an advisory description.
func WithDescription(desc string) InstrumentOption {
	return func(c *InstrumentConfig) { c.Description = desc }
}

// WithUnit sets an advisory unit ("1", "By", "s").
func WithUnit(unit string) InstrumentOption {
	return func(c *InstrumentConfig) { c.Unit = unit }
}

func applyOptions(opts []InstrumentOption) InstrumentConfig {
	var cfg InstrumentConfig
	for _, o := range opts {
		if o != nil {
			o(&cfg)
		}
	}
	return cfg
}
