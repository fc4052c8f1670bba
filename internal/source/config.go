package source

import "time"

// Config declares one source. Fields that a kind does not use are ignored.
type Config struct {
	Kind           string    `json:"kind" yaml:"kind" validate:"required"`
	Name           string    `json:"name" yaml:"name"`
	Path           string    `json:"path" yaml:"path"`
	Dir            string    `json:"dir" yaml:"dir"`
	Prefix         string    `json:"prefix" yaml:"prefix"`
	Sheet          string    `json:"sheet" yaml:"sheet"`
	Symbol         string    `json:"symbol" yaml:"symbol"`
	Table          string    `json:"table" yaml:"table"`
	DSN            string    `json:"dsn" yaml:"dsn"`
	TimeColumn     string    `json:"timeColumn" yaml:"timeColumn"`
	TimeLayout     string    `json:"timeLayout" yaml:"timeLayout"`
	UseRecvTime    bool      `json:"useRecvTime" yaml:"useRecvTime"`
	SpacingSeconds int       `json:"spacingSeconds" yaml:"spacingSeconds" validate:"gte=0"`
	Start          time.Time `json:"start" yaml:"start"`
	End            time.Time `json:"end" yaml:"end"`
	Count          int       `json:"count" yaml:"count" validate:"gte=0"`
	IntervalMillis int       `json:"intervalMillis" yaml:"intervalMillis" validate:"gte=0"`
	MaxPayloadSize int       `json:"maxPayloadSize" yaml:"maxPayloadSize" validate:"gte=0"`
	SkipChecksum   bool      `json:"skipChecksum" yaml:"skipChecksum"`
}

// Label returns the configured name or the kind.
func (c Config) Label() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Kind
}
