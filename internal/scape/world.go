package scape

import (
	"fmt"
	"math"
	"math/rand"

	"flapevo/internal/model"
)

// Observation is the sensor vector handed to an agent's decision function.
type Observation struct {
	Y          float64
	DistTop    float64
	DistBottom float64
}

func (o Observation) Vector() []float64 {
	return []float64{o.Y, o.DistTop, o.DistBottom}
}

// DecideFunc returns true when the agent for member should jump.
type DecideFunc func(member int, obs Observation) (bool, error)

// Agent binds a live bird to its population member index.
type Agent struct {
	Member int
	Bird   *Bird
}

// StepResult reports what one frame did to the fitness ledger.
type StepResult struct {
	Passed    bool
	Scored    []int
	Collided  []int
	OutBounds []int
}

const (
	TickReward       = 0.1
	PassReward       = 5.0
	CollisionPenalty = 1.0
)

// World is one generation's playfield. All mutation happens through Step,
// which walks agents and pipes in slice order.
type World struct {
	Geometry Geometry
	Collider Collider
	Rand     *rand.Rand

	Agents []*Agent
	Pipes  []*Pipe
	Base   *Base
	Score  int
}

// NewWorld builds a fresh playfield, or restores pipes, ground and score from
// snapshot when one is given. Birds are never restored; the caller spawns a
// new flock with Spawn.
func NewWorld(g Geometry, rng *rand.Rand, snapshot *model.GameSnapshot) *World {
	w := &World{
		Geometry: g,
		Collider: BoxCollider{},
		Rand:     rng,
		Base:     NewBase(g),
	}
	if snapshot == nil {
		w.Pipes = []*Pipe{NewPipe(rng, g, g.FirstPipeX)}
		return w
	}

	w.Base.X1 = snapshot.BaseX1
	w.Base.X2 = snapshot.BaseX2
	w.Score = snapshot.Score
	for _, ps := range snapshot.Pipes {
		p := &Pipe{X: ps.X, Passed: ps.Passed}
		p.SetHeight(g, ps.Height)
		w.Pipes = append(w.Pipes, p)
	}
	if len(w.Pipes) == 0 {
		w.Pipes = []*Pipe{NewPipe(rng, g, g.FirstPipeX)}
	}
	return w
}

func (w *World) Spawn(members int, x float64) {
	w.Agents = make([]*Agent, 0, members)
	for i := 0; i < members; i++ {
		w.Agents = append(w.Agents, &Agent{Member: i, Bird: NewBird(x, w.Geometry.BirdStartY)})
	}
}

func (w *World) Alive() int {
	return len(w.Agents)
}

// FocusPipeIndex is the pipe the flock should look at, or -1 when no bird is
// alive.
func (w *World) FocusPipeIndex() int {
	if len(w.Agents) == 0 || len(w.Pipes) == 0 {
		return -1
	}
	if len(w.Pipes) > 1 && w.Agents[0].Bird.X > w.Pipes[0].X+w.Geometry.PipeWidth {
		return 1
	}
	return 0
}

// Step advances one frame. fitness is indexed by member and is credited and
// debited in place.
func (w *World) Step(decide DecideFunc, fitness []float64) (StepResult, error) {
	var res StepResult
	focus := w.FocusPipeIndex()
	if focus < 0 {
		return res, nil
	}
	pipe := w.Pipes[focus]
	g := w.Geometry

	for _, a := range w.Agents {
		a.Bird.Move(g)
		fitness[a.Member] += TickReward
		obs := Observation{
			Y:          a.Bird.Y,
			DistTop:    math.Abs(a.Bird.Y - pipe.Height),
			DistBottom: math.Abs(a.Bird.Y - pipe.Bottom),
		}
		jump, err := decide(a.Member, obs)
		if err != nil {
			return res, fmt.Errorf("member %d: %w", a.Member, err)
		}
		if jump {
			a.Bird.Jump(g)
		}
	}

	kept := w.Pipes[:0:0]
	for _, p := range w.Pipes {
		for i := len(w.Agents) - 1; i >= 0; i-- {
			a := w.Agents[i]
			if w.Collider.Collide(g, a.Bird, p) {
				fitness[a.Member] -= CollisionPenalty
				res.Collided = append(res.Collided, a.Member)
				w.removeAgent(i)
				continue
			}
			if !p.Passed && p.X < a.Bird.X {
				p.Passed = true
				res.Passed = true
			}
		}
		offScreen := p.OffScreen(g)
		p.Move(g)
		if !offScreen {
			kept = append(kept, p)
		}
	}

	if res.Passed {
		w.Score++
		for _, a := range w.Agents {
			fitness[a.Member] += PassReward
			res.Scored = append(res.Scored, a.Member)
		}
		kept = append(kept, NewPipe(w.Rand, g, g.NextPipeX))
	}
	w.Pipes = kept

	for i := len(w.Agents) - 1; i >= 0; i-- {
		b := w.Agents[i].Bird
		if b.Y+g.BirdHeight >= g.GroundY || b.Y < 0 {
			res.OutBounds = append(res.OutBounds, w.Agents[i].Member)
			w.removeAgent(i)
		}
	}

	w.Base.Move(g)
	return res, nil
}

func (w *World) removeAgent(i int) {
	w.Agents = append(w.Agents[:i], w.Agents[i+1:]...)
}

// Snapshot captures the live state in its persisted form.
func (w *World) Snapshot() model.GameSnapshot {
	snap := model.GameSnapshot{
		Birds:  make([]model.BirdState, 0, len(w.Agents)),
		Pipes:  make([]model.PipeState, 0, len(w.Pipes)),
		BaseX1: w.Base.X1,
		BaseX2: w.Base.X2,
		Score:  w.Score,
	}
	for _, a := range w.Agents {
		snap.Birds = append(snap.Birds, model.BirdState{X: a.Bird.X, Y: a.Bird.Y, Velocity: a.Bird.Velocity, Tilt: a.Bird.Tilt})
	}
	for _, p := range w.Pipes {
		snap.Pipes = append(snap.Pipes, model.PipeState{X: p.X, Height: p.Height, Passed: p.Passed})
	}
	return snap
}
