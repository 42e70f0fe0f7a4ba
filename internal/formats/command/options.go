package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/phyloconv/core/errors"
)

// optionGrammar parses sub-command lists such as
// "NTAX=5 NCHAR=10" or "DATATYPE=DNA GAP=- INTERLEAVE SYMBOLS=\"0 1\"".
//
//nolint:govet // participle grammar tags are not standard struct tags
type optionGrammar struct {
	Items []*optionItem `@@*`
}

//nolint:govet // participle grammar tags are not standard struct tags
type optionItem struct {
	Key   string  `@Word`
	Value *string `( "=" @(Quoted | Word) )?`
}

var optionLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Quoted", Pattern: `'(?:[^']|'')*'|"(?:[^"]|"")*"`},
	{Name: "Eq", Pattern: `=`},
	{Name: "Word", Pattern: `[^\s='"]+`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var optionParser = participle.MustBuild[optionGrammar](
	participle.Lexer(optionLexer),
	participle.Elide("Whitespace"),
)

// Options is a parsed sub-command list. Keys are case-insensitive.
type Options struct {
	command string
	values  map[string]string
	keys    []string
}

// ParseOptions parses the arguments of command.
func ParseOptions(command, text string) (*Options, error) {
	o := &Options{command: command, values: make(map[string]string)}
	if strings.TrimSpace(text) == "" {
		return o, nil
	}
	parsed, err := optionParser.ParseString("", text)
	if err != nil {
		return nil, &errors.ParseError{Message: fmt.Sprintf("malformed %s command", command), Err: err}
	}
	for _, item := range parsed.Items {
		key := strings.ToUpper(item.Key)
		value := ""
		if item.Value != nil {
			value = Unquote(*item.Value)
		}
		if _, seen := o.values[key]; !seen {
			o.keys = append(o.keys, key)
		}
		o.values[key] = value
	}
	return o, nil
}

// Keys returns the upper-cased keys in input order.
func (o *Options) Keys() []string {
	return o.keys
}

// Has reports whether key is present, with or without value.
func (o *Options) Has(key string) bool {
	_, ok := o.values[strings.ToUpper(key)]
	return ok
}

// Get returns the value of key.
func (o *Options) Get(key string) (string, bool) {
	v, ok := o.values[strings.ToUpper(key)]
	return v, ok
}

// Int returns the integer value of key. A value that is not a number fails
// with a ParseError naming the sub-command.
func (o *Options) Int(key string) (int64, bool, error) {
	v, ok := o.Get(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0, true, &errors.ParseError{
			Message: fmt.Sprintf("invalid number %q for %s in %s command", v, strings.ToUpper(key), o.command),
		}
	}
	return n, true, nil
}
