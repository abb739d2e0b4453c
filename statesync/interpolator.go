package statesync

import (
	"math"
	"sort"
	"time"

	"github.com/opd-ai/lanshare/internal/clock"
	"github.com/opd-ai/lanshare/protocol"
	"github.com/sirupsen/logrus"
)

// Blend defaults. DefaultBlendRate closes 85% of the gap in 100 ms:
// 1 - exp(-rate * 0.1) = 0.85.
const (
	DefaultBlendRate         = 18.971199848858813
	DefaultPitchRate         = 10.0
	DefaultMovementThreshold = 0.01
	DefaultMovementDecay     = 150 * time.Millisecond
)

// InterpolatorConfig tunes the blending. Zero fields take the defaults.
type InterpolatorConfig struct {
	BlendRate         float64
	PitchRate         float64
	MovementThreshold float32
	MovementDecay     time.Duration
}

// RemotePlayer is the client-side view of another player.
type RemotePlayer struct {
	// Target is the latest authoritative state from the host.
	Target protocol.PlayerState
	// Displayed is the smoothed state to render.
	Displayed protocol.PlayerState
	// Moving is true while the player has recently changed position.
	Moving bool

	lastMoved time.Time
}

// Interpolator holds remote players and blends their displayed transforms
// toward the latest targets. It is owned by the tick loop.
type Interpolator struct {
	cfg          InterpolatorConfig
	timeProvider clock.TimeProvider
	players      map[protocol.PlayerID]*RemotePlayer
}

// NewInterpolator creates an empty interpolator.
func NewInterpolator(cfg InterpolatorConfig) *Interpolator {
	if cfg.BlendRate <= 0 {
		cfg.BlendRate = DefaultBlendRate
	}
	if cfg.PitchRate <= 0 {
		cfg.PitchRate = DefaultPitchRate
	}
	if cfg.MovementThreshold <= 0 {
		cfg.MovementThreshold = DefaultMovementThreshold
	}
	if cfg.MovementDecay <= 0 {
		cfg.MovementDecay = DefaultMovementDecay
	}
	return &Interpolator{
		cfg:          cfg,
		timeProvider: clock.DefaultTimeProvider{},
		players:      make(map[protocol.PlayerID]*RemotePlayer),
	}
}

// SetTimeProvider sets the clock used for the movement decay.
func (in *Interpolator) SetTimeProvider(tp clock.TimeProvider) {
	in.timeProvider = clock.OrDefault(tp)
}

// Sync applies one GameState snapshot. The local player's own entry is
// skipped, every other state becomes that player's target, and players not
// present in the snapshot are removed.
//
// Parameters:
//   - states: every player the host knows about
//   - self: the local player's id
//
// Returns:
//   - []protocol.PlayerID: ids removed because they were absent
func (in *Interpolator) Sync(states []protocol.PlayerState, self protocol.PlayerID) []protocol.PlayerID {
	present := make(map[protocol.PlayerID]struct{}, len(states))
	for _, s := range states {
		if s.ID == self {
			continue
		}
		present[s.ID] = struct{}{}
		in.SetTarget(s)
	}

	var removed []protocol.PlayerID
	for id := range in.players {
		if _, ok := present[id]; !ok {
			removed = append(removed, id)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
	for _, id := range removed {
		in.Remove(id)
	}
	return removed
}

// SetTarget records a new authoritative state. The first state for a
// player is displayed immediately.
func (in *Interpolator) SetTarget(state protocol.PlayerState) {
	p, ok := in.players[state.ID]
	if !ok {
		in.players[state.ID] = &RemotePlayer{Target: state, Displayed: state}

		logrus.WithFields(logrus.Fields{
			"function":  "Interpolator.SetTarget",
			"player_id": state.ID,
		}).Debug("Remote player appeared")
		return
	}

	if distance(p.Target.Position, state.Position) > in.cfg.MovementThreshold {
		p.Moving = true
		p.lastMoved = in.timeProvider.Now()
	}
	p.Target = state
}

// Remove forgets a player. It reports whether the player was known.
func (in *Interpolator) Remove(id protocol.PlayerID) bool {
	if _, ok := in.players[id]; !ok {
		return false
	}
	delete(in.players, id)
	return true
}

// Clear forgets every player.
func (in *Interpolator) Clear() {
	in.players = make(map[protocol.PlayerID]*RemotePlayer)
}

// Step blends every displayed transform toward its target over dt and
// expires the moving flag.
func (in *Interpolator) Step(dt time.Duration) {
	seconds := dt.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	alpha := float32(1 - math.Exp(-in.cfg.BlendRate*seconds))
	pitchAlpha := float32(1 - math.Exp(-in.cfg.PitchRate*seconds))
	now := in.timeProvider.Now()

	for _, p := range in.players {
		d := &p.Displayed
		for i := range d.Position {
			d.Position[i] += (p.Target.Position[i] - d.Position[i]) * alpha
		}
		d.Yaw = lerpAngle(d.Yaw, p.Target.Yaw, alpha)
		d.Pitch += (p.Target.Pitch - d.Pitch) * pitchAlpha

		if p.Moving && now.Sub(p.lastMoved) >= in.cfg.MovementDecay {
			p.Moving = false
		}
	}
}

// Players returns a snapshot of every remote player ordered by id.
func (in *Interpolator) Players() []RemotePlayer {
	out := make([]RemotePlayer, 0, len(in.players))
	for _, p := range in.players {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target.ID < out[j].Target.ID })
	return out
}

// Player returns one remote player.
func (in *Interpolator) Player(id protocol.PlayerID) (RemotePlayer, bool) {
	p, ok := in.players[id]
	if !ok {
		return RemotePlayer{}, false
	}
	return *p, true
}

// Len returns the number of remote players.
func (in *Interpolator) Len() int {
	return len(in.players)
}

func distance(a, b [3]float32) float32 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return float32(math.Sqrt(float64(dx*dx + dy*dy + dz*dz)))
}

// lerpAngle moves from toward to along the shorter arc.
func lerpAngle(from, to, t float32) float32 {
	diff := math.Remainder(float64(to-from), 2*math.Pi)
	if math.Abs(diff) < 1e-6 {
		return to
	}
	return from + float32(diff)*t
}
