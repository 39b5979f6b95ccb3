// Package manifest parses the line-oriented package manifest format.
//
// A package looks like:
//
//	atpk-name: Demo
//	atpk-description: Example package
//
//	!AUTOMATON
//	name: clock
//	version: 1.0
//	description: keeps time
//	priority: 10
//	controls: screen, audio
//	code>
//	return { setup = function(self) end }
//	<code
//
// Package-level fields may appear anywhere outside a block. Each !AUTOMATON
// line starts a block that runs until the next !AUTOMATON line or the end of
// input. Inside a block, "code>" and "<code" delimit the raw code body;
// everything else is "key: value" metadata.
package manifest

import (
	"strconv"
	"strings"

	"automata/pkg/automaton"
)

const (
	automatonMarker = "!AUTOMATON"
	codeOpen        = "code>"
	codeClose       = "<code"

	packageNamePrefix        = "atpk-name:"
	packageDescriptionPrefix = "atpk-description:"
)

// Parse turns raw package source into a Package.
//
// Any malformed automaton block fails the whole package with a *ParseError;
// nothing is skipped. A code body left open at the end of its block is
// closed implicitly and keeps the lines captured so far.
func Parse(content string) (*automaton.Package, error) {
	lines := splitLines(content)
	pkg := &automaton.Package{Automata: make([]automaton.Definition, 0)}

	i := 0
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])

		switch {
		case line == automatonMarker:
			def, next, err := parseBlock(lines, i)
			if err != nil {
				return nil, err
			}
			pkg.Automata = append(pkg.Automata, def)
			i = next
			continue
		case strings.HasPrefix(line, packageNamePrefix):
			pkg.Name = strings.TrimSpace(line[len(packageNamePrefix):])
		case strings.HasPrefix(line, packageDescriptionPrefix):
			pkg.Description = strings.TrimSpace(line[len(packageDescriptionPrefix):])
		}
		i++
	}

	return pkg, nil
}

// parseBlock reads the block whose marker is at lines[start]. It returns the
// definition and the index of the line that terminated the block.
func parseBlock(lines []string, start int) (automaton.Definition, int, error) {
	def := automaton.Definition{
		Priority:     automaton.DefaultPriority,
		RespondsTo:   []string{},
		Controls:     []string{},
		Dependencies: []string{},
	}

	var code []string
	inCode := false

	i := start + 1
	for ; i < len(lines); i++ {
		raw := lines[i]
		line := strings.TrimSpace(raw)

		if line == automatonMarker {
			break
		}

		if inCode {
			if line == codeClose {
				inCode = false
				continue
			}
			code = append(code, raw)
			continue
		}

		if line == codeOpen {
			inCode = true
			continue
		}
		if line == "" {
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		applyField(&def, strings.TrimSpace(key), strings.TrimSpace(value))
	}

	def.Code = strings.Join(code, "\n")

	if missing := missingFields(def); len(missing) > 0 {
		return automaton.Definition{}, i, &ParseError{Line: start + 1, Missing: missing}
	}
	return def, i, nil
}

func applyField(def *automaton.Definition, key, value string) {
	switch key {
	case "name":
		def.Name = value
	case "version":
		def.Version = value
	case "description":
		def.Description = value
	case "author":
		def.Author = value
	case "priority":
		def.Priority = parsePriority(value)
	case "respondsto":
		def.RespondsTo = splitList(value)
	case "controls":
		def.Controls = splitList(value)
	case "dependencies":
		def.Dependencies = splitList(value)
	}
}

func parsePriority(value string) int {
	p, err := strconv.Atoi(value)
	if err != nil {
		return automaton.DefaultPriority
	}
	return p
}

// splitList splits a comma-separated value, trimming each token and dropping
// empty and repeated ones. Order is preserved.
func splitList(value string) []string {
	out := make([]string, 0)
	seen := make(map[string]struct{})
	for _, tok := range strings.Split(value, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

func missingFields(def automaton.Definition) []string {
	var missing []string
	if def.Name == "" {
		missing = append(missing, "name")
	}
	if def.Version == "" {
		missing = append(missing, "version")
	}
	if def.Description == "" {
		missing = append(missing, "description")
	}
	if strings.TrimSpace(def.Code) == "" {
		missing = append(missing, "code")
	}
	return missing
}

// splitLines splits on "\n" and drops a trailing "\r" so CRLF files parse
// the same as LF files.
func splitLines(content string) []string {
	lines := strings.Split(content, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
