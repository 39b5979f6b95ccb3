package testutil

import (
	"strconv"
	"strings"

	"automata/pkg/automaton"
)

// RenderPackage writes pkg in manifest format. Empty optional fields are
// omitted; the priority line is always written.
func RenderPackage(pkg automaton.Package) string {
	var b strings.Builder
	if pkg.Name != "" {
		b.WriteString("atpk-name: " + pkg.Name + "\n")
	}
	if pkg.Description != "" {
		b.WriteString("atpk-description: " + pkg.Description + "\n")
	}
	for _, def := range pkg.Automata {
		b.WriteString("\n" + RenderAutomaton(def))
	}
	return b.String()
}

// RenderAutomaton writes one !AUTOMATON block.
func RenderAutomaton(def automaton.Definition) string {
	var b strings.Builder
	b.WriteString("!AUTOMATON\n")
	writeField(&b, "name", def.Name)
	writeField(&b, "version", def.Version)
	writeField(&b, "description", def.Description)
	writeField(&b, "author", def.Author)
	writeField(&b, "priority", strconv.Itoa(def.Priority))
	writeField(&b, "respondsto", strings.Join(def.RespondsTo, ", "))
	writeField(&b, "controls", strings.Join(def.Controls, ", "))
	writeField(&b, "dependencies", strings.Join(def.Dependencies, ", "))
	if def.Code != "" {
		b.WriteString("code>\n" + def.Code + "\n<code\n")
	}
	return b.String()
}

func writeField(b *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	b.WriteString(key + ": " + value + "\n")
}

// Def builds a well-formed definition with the default priority.
func Def(name string) automaton.Definition {
	return automaton.Definition{
		Name:         name,
		Version:      "1",
		Description:  name + " automaton",
		Priority:     automaton.DefaultPriority,
		RespondsTo:   []string{},
		Controls:     []string{},
		Dependencies: []string{},
		Code:         "return {}",
	}
}
