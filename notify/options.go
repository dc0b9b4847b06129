package notify

const defaultBufferSize = 64

// Option applies a configuration option to the Broker.
type Option func(*Broker)

// WithBufferSize sets the per-subscriber channel buffer.
func WithBufferSize(size int) Option {
	return func(b *Broker) {
		if size > 0 {
			b.buffer = size
		}
	}
}
