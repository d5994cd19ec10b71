package config

// ConfigBackend abstracts where non-secret config values are persisted.
// The default is a flat JSON file under $XDG_CONFIG_HOME. Getters report
// ok=false for unset keys and an error for values of the wrong shape.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	GetFloat(key string) (val float64, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	SetFloat(key string, val float64) error
	Has(key string) bool
	Delete(key string) error
}
