package perfmon

// Sampler is one periodic metrics source. The runner drives every
// sampler from a single goroutine: Sample is invoked on a fixed cadence
// and never concurrently with itself or with Register/Deregister.
//
// Samplers register their recorder channels lazily on the first
// successful sample and may be deregistered and later re-registered.
// Register and Deregister are idempotent.
type Sampler interface {
	// Sample reads the source, aggregates, and records one value per
	// tracked statistic, all sharing a single timestamp. Degraded
	// reads are absorbed; Sample reports success regardless.
	Sample() error

	// Register creates the recorder channels for the sampler's
	// statistics. No-op when already registered.
	Register()

	// Deregister deletes the sampler's recorder channels. No-op when
	// not registered.
	Deregister()

	// Name is the fixed identifier used for logging and dispatch.
	Name() string

	// Close releases any OS resources held by the sampler.
	Close() error
}
