package config

// Backend persists raw config values under dotted keys such as
// "backend.api_url". Values are kept as strings; each key parses its own.
type Backend interface {
	Lookup(key string) (value string, ok bool, err error)
	Store(key, value string) error
	Remove(key string) error
}
