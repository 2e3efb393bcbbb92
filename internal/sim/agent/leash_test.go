package agent

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mobsim/internal/persistence/snapshot"
	"mobsim/internal/sim/equipment"
	"mobsim/internal/sim/terrain"
)

type unleashLog struct {
	reasons []UnleashReason
}

func (l *unleashLog) hooks() Hooks {
	return Hooks{Unleashed: func(_ *Agent, _ Entity, r UnleashReason) { l.reasons = append(l.reasons, r) }}
}

func leashedDoc(ref snapshot.LeashV1) snapshot.AgentV1 {
	return snapshot.AgentV1{
		ID:          uuid.NewString(),
		Kind:        "cow",
		Pos:         [3]float64{0, 64, 0},
		DataVersion: snapshot.CurrentDataVersion,
		Leashed:     true,
		Leash:       &ref,
	}
}

func TestLeash_RecreateByIdentity(t *testing.T) {
	w := newWorld()
	holder := newFake(mgl64.Vec3{4, 64, 0})
	w.entities[holder.id] = holder

	a := newAgent(t, Hooks{})
	a.ReadDocument(leashedDoc(snapshot.LeashV1{UUID: holder.id.String()}))
	require.True(t, a.Leashed())
	assert.Nil(t, a.LeashHolder())

	a.UpdateLeash(Env{World: w})
	assert.Same(t, holder, a.LeashHolder())
	assert.Empty(t, w.drops)
}

func TestLeash_RecreateOutOfRangeBreaks(t *testing.T) {
	w := newWorld()
	holder := newFake(mgl64.Vec3{40, 64, 0})
	w.entities[holder.id] = holder
	var log unleashLog

	a := newAgent(t, log.hooks())
	a.ReadDocument(leashedDoc(snapshot.LeashV1{UUID: holder.id.String()}))
	a.UpdateLeash(Env{World: w})

	assert.False(t, a.Leashed())
	assert.Equal(t, []UnleashReason{UnleashHolderGone}, log.reasons)
	require.Len(t, w.drops, 1)
	assert.Equal(t, LeadItemID, w.drops[0].ID)
}

func TestLeash_RecreateByKnot(t *testing.T) {
	w := newWorld()
	x, y, z := 2, 65, -1
	a := newAgent(t, Hooks{})
	a.ReadDocument(leashedDoc(snapshot.LeashV1{X: &x, Y: &y, Z: &z}))
	a.UpdateLeash(Env{World: w})

	k, ok := a.LeashHolder().(Knot)
	require.True(t, ok)
	assert.Equal(t, terrain.Pos{X: 2, Y: 65, Z: -1}, k.KnotPos())
}

func TestLeash_UnresolvableReferenceIsUnknown(t *testing.T) {
	w := newWorld()
	var log unleashLog
	a := newAgent(t, log.hooks())
	a.ReadDocument(leashedDoc(snapshot.LeashV1{}))
	a.UpdateLeash(Env{World: w})

	assert.False(t, a.Leashed())
	assert.Equal(t, []UnleashReason{UnleashUnknown}, log.reasons)
	assert.Len(t, w.drops, 1)
}

func TestLeash_HolderGoneAndDeath(t *testing.T) {
	w := newWorld()
	var log unleashLog
	holder := newFake(mgl64.Vec3{1, 64, 0})

	a := newAgent(t, log.hooks())
	a.SetLeashHolder(holder)
	a.UpdateLeash(Env{World: w})
	assert.True(t, a.Leashed())

	holder.alive = false
	a.UpdateLeash(Env{World: w})
	assert.False(t, a.Leashed())

	b := newAgent(t, log.hooks())
	b.SetLeashHolder(newFake(mgl64.Vec3{}))
	b.Die(Env{World: w}, false, 0, nil)
	assert.False(t, b.Leashed())

	assert.Equal(t, []UnleashReason{UnleashHolderGone, UnleashDied}, log.reasons)
	assert.Len(t, w.drops, 2)
}

func TestLeash_MountingDropsLeash(t *testing.T) {
	w := newWorld()
	a := newAgent(t, Hooks{})
	a.SetLeashHolder(newFake(mgl64.Vec3{}))
	mount := New(Config{Kind: "horse"})
	require.True(t, a.StartRiding(Env{World: w}, mount))
	assert.False(t, a.Leashed())
	assert.Len(t, w.drops, 1)

	// Leashing a rider pulls it off the mount.
	a.SetLeashHolder(newFake(mgl64.Vec3{}))
	assert.Nil(t, a.Mount)
	assert.Nil(t, mount.Rider)
}

func TestInteract(t *testing.T) {
	w := newWorld()
	env := Env{World: w}
	player := newFake(mgl64.Vec3{1, 64, 1})
	other := newFake(mgl64.Vec3{2, 64, 2})
	var log unleashLog

	a := newAgent(t, log.hooks())
	lead := equipment.NewItem(LeadItemID, 2)
	require.True(t, a.Interact(env, player, &lead))
	assert.Equal(t, 1, lead.Count)
	assert.Same(t, player, a.LeashHolder())

	// A second lead from someone else does nothing.
	assert.False(t, a.Interact(env, other, &lead))
	assert.Equal(t, 1, lead.Count)

	require.True(t, a.Interact(env, player, nil))
	assert.False(t, a.Leashed())
	assert.Equal(t, []UnleashReason{UnleashPlayer}, log.reasons)
	assert.Len(t, w.drops, 1)

	hostile := newAgent(t, Hooks{})
	hostile.Hostile = true
	assert.False(t, hostile.Interact(env, player, &lead))

	vetoed := newAgent(t, Hooks{AuthorizeLeash: func(*Agent, Entity) bool { return false }})
	assert.False(t, vetoed.Interact(env, player, &lead))
	assert.Equal(t, 1, lead.Count)

	sword := equipment.NewItem("iron_sword", 1)
	assert.False(t, newAgent(t, Hooks{}).Interact(env, player, &sword))
}
