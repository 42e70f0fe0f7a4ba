// Package config holds the parameters that control reading and writing.
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
)

// Params is the parameter map consumed by readers and writers. The zero
// value is not useful; start from Default.
type Params struct {
	// ReplaceMatchTokens expands the match character to the token of the
	// first sequence at the same column.
	ReplaceMatchTokens bool `toml:"replace_match_tokens"`
	// MatchToken is the match character used when the input does not
	// declare one.
	MatchToken string `toml:"match_token"`
	// MaxTokensPerEvent caps the tokens in one SEQUENCE_TOKENS event.
	MaxTokensPerEvent int `toml:"max_tokens_per_event"`
	// MaxCommentLength caps the length of a comment in bytes.
	MaxCommentLength int `toml:"max_comment_length"`
	// MaxTokenLength caps the length of a single word or label.
	MaxTokenLength int `toml:"max_token_length"`
	// TruncateOversized truncates comments and words over the caps instead
	// of failing.
	TruncateOversized bool `toml:"truncate_oversized"`
	// SynthesizePlaceholders lets writers create missing OTU lists and token
	// sets instead of failing.
	SynthesizePlaceholders bool `toml:"synthesize_placeholders"`
	// MaxLabelLength truncates labels written to formats without ids. Zero
	// means unlimited.
	MaxLabelLength int `toml:"max_label_length"`
	// UseTranslationTable makes Nexus writers emit TRANSLATE tables and
	// reference tree nodes by number.
	UseTranslationTable bool `toml:"use_translation_table"`
	// UnknownAsMetadata turns unknown XML attributes into literal metadata
	// instead of ignoring them.
	UnknownAsMetadata bool `toml:"unknown_as_metadata"`
	// IDStrategy is "sequential" or "uuid".
	IDStrategy string `toml:"id_strategy"`
	// LineWidth is the number of tokens per line in wrapped output.
	LineWidth int `toml:"line_width"`
}

// Default returns the default parameters.
func Default() Params {
	return Params{
		ReplaceMatchTokens:     true,
		MatchToken:             ".",
		MaxTokensPerEvent:      2048,
		MaxCommentLength:       65536,
		MaxTokenLength:         4096,
		TruncateOversized:      false,
		SynthesizePlaceholders: true,
		MaxLabelLength:         0,
		UseTranslationTable:    true,
		UnknownAsMetadata:      true,
		IDStrategy:             "sequential",
		LineWidth:              60,
	}
}

// Load reads parameters from a TOML file. Keys missing from the file keep
// their default value.
func Load(path string) (Params, error) {
	f, err := os.Open(path)
	if err != nil {
		return Params{}, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads parameters from TOML. Keys missing from the input keep their
// default value; unknown keys are an error.
func Decode(r io.Reader) (Params, error) {
	p := Default()
	md, err := toml.NewDecoder(r).Decode(&p)
	if err != nil {
		return Params{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Params{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// Validate checks that the parameters are usable.
func (p Params) Validate() error {
	switch {
	case p.MaxTokensPerEvent <= 0:
		return fmt.Errorf("max_tokens_per_event must be positive, got %d", p.MaxTokensPerEvent)
	case p.MaxCommentLength <= 0:
		return fmt.Errorf("max_comment_length must be positive, got %d", p.MaxCommentLength)
	case p.MaxTokenLength <= 0:
		return fmt.Errorf("max_token_length must be positive, got %d", p.MaxTokenLength)
	case p.MaxLabelLength < 0:
		return fmt.Errorf("max_label_length must not be negative, got %d", p.MaxLabelLength)
	case p.LineWidth <= 0:
		return fmt.Errorf("line_width must be positive, got %d", p.LineWidth)
	case len([]rune(p.MatchToken)) != 1:
		return fmt.Errorf("match_token must be a single character, got %q", p.MatchToken)
	}
	switch p.IDStrategy {
	case "sequential", "uuid":
	default:
		return fmt.Errorf("id_strategy must be \"sequential\" or \"uuid\", got %q", p.IDStrategy)
	}
	return nil
}
