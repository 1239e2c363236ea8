package wavecraft

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_status_cell_BroadcastsTransitions(t *testing.T) {
	var cell = new_status_cell()
	assert.Equal(t, StateUninitialized, cell.get().State)

	var seen []AudioState
	cell.subscribe(func(s AudioStatus) { seen = append(seen, s.State) })

	cell.set(AudioStatus{State: StateInitializing})
	cell.set(AudioStatus{State: StateRunningFullDuplex})

	assert.Equal(t, []AudioState{StateInitializing, StateRunningFullDuplex}, seen)
	assert.Equal(t, StateRunningFullDuplex, cell.get().State)
}

func Test_status_cell_SuppressesNoopTransitions(t *testing.T) {
	var cell = new_status_cell()

	var count int
	cell.subscribe(func(AudioStatus) { count++ })

	cell.set(AudioStatus{State: StateInitializing})
	cell.set(AudioStatus{State: StateInitializing})

	assert.Equal(t, 1, count)
}
