package registry

// Conflict lists every loaded automaton that claims the same control tag.
// Automata and Priorities are parallel and in load order.
type Conflict struct {
	Control    string   `json:"control"`
	Automata   []string `json:"automata"`
	Priorities []int    `json:"priorities"`
}

// Conflicts reports each control tag claimed by more than one loaded
// automaton, in the order the tags were first claimed. Conflicts are
// advisory; nothing is unloaded or refused because of them.
func (r *Registry) Conflicts() []Conflict {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byTag := make(map[string]*Conflict)
	var tags []string
	for _, name := range r.order {
		e := r.entries[name]
		for _, tag := range e.def.Controls {
			c, ok := byTag[tag]
			if !ok {
				c = &Conflict{Control: tag}
				byTag[tag] = c
				tags = append(tags, tag)
			}
			c.Automata = append(c.Automata, name)
			c.Priorities = append(c.Priorities, e.def.Priority)
		}
	}

	out := make([]Conflict, 0)
	for _, tag := range tags {
		if c := byTag[tag]; len(c.Automata) > 1 {
			out = append(out, *c)
		}
	}
	return out
}
