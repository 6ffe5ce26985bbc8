package metadata

// Reserved metadata keys carried alongside every event.
const (
	// KeyCorrelationID tracks causally related messages across services.
	KeyCorrelationID = "correlation_id"

	// KeyTraceparent carries the W3C trace-context string
	// (version-traceId-spanId-flags) from producer to consumer.
	KeyTraceparent = "traceparent"
)

// Metadata represents the headers carried alongside an event.
type Metadata map[string]string

func (m Metadata) cloneWithExtra(extra int) Metadata {
	size := len(m) + extra
	if size <= 0 {
		return Metadata{}
	}

	cloned := make(Metadata, size)
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	return m.cloneWithExtra(0)
}

// With returns a cloned metadata map containing the provided key/value pair.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.cloneWithExtra(1)
	cloned[key] = value
	return cloned
}

// New constructs a Metadata map from alternating key/value pairs.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i < len(pairs)-1; i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}

// Get returns the value for key, or "" when absent. Safe on a nil map.
func (m Metadata) Get(key string) string {
	if m == nil {
		return ""
	}
	return m[key]
}

// Set stores the value under key. The map must be non-nil.
func (m Metadata) Set(key, value string) {
	m[key] = value
}

// Keys lists the stored keys. It implements the remaining method of the
// OpenTelemetry TextMapCarrier interface so a Metadata map can be used
// directly as the propagation carrier for traceparent injection/extraction.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
