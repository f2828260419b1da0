package resolve

import "iter"

// Warnings collects non-fatal messages per mod, in the order the mods were
// first warned about.
type Warnings struct {
	order []string
	msgs  map[string][]string
}

func NewWarnings() *Warnings {
	return &Warnings{msgs: make(map[string][]string)}
}

func (w *Warnings) Add(mod, msg string) {
	if _, ok := w.msgs[mod]; !ok {
		w.order = append(w.order, mod)
	}
	w.msgs[mod] = append(w.msgs[mod], msg)
}

func (w *Warnings) Get(mod string) []string { return w.msgs[mod] }

// Len is the number of mods with warnings.
func (w *Warnings) Len() int { return len(w.order) }

func (w *Warnings) All() iter.Seq2[string, []string] {
	return func(yield func(string, []string) bool) {
		for _, mod := range w.order {
			if !yield(mod, w.msgs[mod]) {
				return
			}
		}
	}
}
