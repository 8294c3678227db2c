package domain

// Instrument is one tradable symbol under watch.
type Instrument struct {
	Symbol string `json:"symbol" yaml:"symbol"`
	Name   string `json:"name" yaml:"name"`
}
