package translator

import (
	"errors"
	"fmt"
)

// ErrInvalidConfiguration is returned for equal or unsupported language pairs.
var ErrInvalidConfiguration = errors.New("invalid translation configuration")

// Language codes understood by the pipeline
const (
	PortugueseBR = "pt-BR"
	English      = "en"
)

// Language is a supported language
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// supported is the single place to extend the language set.
var supported = []Language{
	{Code: PortugueseBR, Name: "Portuguese (Brazil)"},
	{Code: English, Name: "English"},
}

// Languages returns the supported languages in display order
func Languages() []Language {
	out := make([]Language, len(supported))
	copy(out, supported)
	return out
}

// LookupLanguage returns the language with the given code
func LookupLanguage(code string) (Language, bool) {
	for _, l := range supported {
		if l.Code == code {
			return l, true
		}
	}
	return Language{}, false
}

// IsSupported reports whether code is a supported language
func IsSupported(code string) bool {
	_, ok := LookupLanguage(code)
	return ok
}

// Configuration is a (source, target) language pair
type Configuration struct {
	Source string `json:"source_language"`
	Target string `json:"target_language"`
}

// DefaultConfiguration translates Brazilian Portuguese to English
func DefaultConfiguration() Configuration {
	return Configuration{Source: PortugueseBR, Target: English}
}

// NewConfiguration validates and builds a pair
func NewConfiguration(source, target string) (Configuration, error) {
	c := Configuration{Source: source, Target: target}
	if err := c.Validate(); err != nil {
		return Configuration{}, err
	}
	return c, nil
}

// Validate checks both languages are supported and differ
func (c Configuration) Validate() error {
	if !IsSupported(c.Source) {
		return fmt.Errorf("%w: unsupported source language %q", ErrInvalidConfiguration, c.Source)
	}
	if !IsSupported(c.Target) {
		return fmt.Errorf("%w: unsupported target language %q", ErrInvalidConfiguration, c.Target)
	}
	if c.Source == c.Target {
		return fmt.Errorf("%w: source and target languages must be different", ErrInvalidConfiguration)
	}
	return nil
}

func (c Configuration) String() string {
	return c.Source + "->" + c.Target
}
