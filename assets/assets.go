package assets

import _ "embed"

// DefaultRules embeds the built-in query rules: month-name map,
// keyword-to-category table and stopword list. An override file pointed at
// by RULES_PATH replaces it wholesale.
//
//go:embed rules.json
var DefaultRules []byte
