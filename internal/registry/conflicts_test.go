package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automata/pkg/testutil"
)

func TestConflicts_SharedControl(t *testing.T) {
	f := newFixture(t)
	f.load(t,
		withControls(testutil.Def("A"), 10, "screen"),
		withControls(testutil.Def("B"), 5, "screen"),
	)

	conflicts := f.reg.Conflicts()
	require.Len(t, conflicts, 1)
	assert.Equal(t, Conflict{
		Control:    "screen",
		Automata:   []string{"A", "B"},
		Priorities: []int{10, 5},
	}, conflicts[0])
}

func TestConflicts(t *testing.T) {
	f := newFixture(t)
	f.load(t,
		withControls(testutil.Def("lights"), 100, "lamp", "screen"),
		withControls(testutil.Def("media"), 50, "screen", "speaker"),
		withControls(testutil.Def("alarm"), 1, "speaker", "lamp", "screen"),
		withControls(testutil.Def("solo"), 100, "door"),
	)

	assert.Equal(t, []Conflict{
		{Control: "lamp", Automata: []string{"lights", "alarm"}, Priorities: []int{100, 1}},
		{Control: "screen", Automata: []string{"lights", "media", "alarm"}, Priorities: []int{100, 50, 1}},
		{Control: "speaker", Automata: []string{"media", "alarm"}, Priorities: []int{50, 1}},
	}, f.reg.Conflicts())
}

func TestConflicts_ResolvedByUnload(t *testing.T) {
	f := newFixture(t)
	f.load(t,
		withControls(testutil.Def("A"), 10, "screen"),
		withControls(testutil.Def("B"), 5, "screen"),
	)

	require.NoError(t, f.reg.Shutdown(context.Background(), "B"))
	assert.Empty(t, f.reg.Conflicts())
	assert.NotNil(t, f.reg.Conflicts())
}

func TestConflicts_None(t *testing.T) {
	f := newFixture(t)
	f.load(t, withControls(testutil.Def("A"), 10, "screen"), testutil.Def("B"))
	assert.Empty(t, f.reg.Conflicts())
}
