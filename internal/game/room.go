// internal/game/room.go
package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bingo/internal/bingo"
	"github.com/jason-s-yu/bingo/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultGraceWindow is how long co-winners may still claim after the
	// first accepted claim.
	DefaultGraceWindow = 2 * time.Second

	defaultOpTimeout   = 5 * time.Second
	finalizeRetryDelay = time.Second
)

// Options tunes room behaviour. A zero GraceWindow finalizes winners
// immediately.
type Options struct {
	GraceWindow time.Duration
	// OpTimeout bounds store calls made from timers.
	OpTimeout time.Duration
	// Seed fixes the card and call order for every room when non-zero.
	Seed   int64
	Logger *logrus.Logger
	Now    func() time.Time
}

func (o Options) withDefaults() Options {
	if o.OpTimeout <= 0 {
		o.OpTimeout = defaultOpTimeout
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func (o Options) newRand() *rand.Rand {
	seed := o.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// Room holds the live state for one game room. Every host write (calls,
// winners, transitions) goes through Mu, which makes the room the single
// serialization point for arbitration.
type Room struct {
	Mu sync.Mutex

	Code string

	room    models.Room
	players map[uuid.UUID]*models.Player
	order   []uuid.UUID
	seq     *bingo.CallSequence
	calls   []int
	winners []models.Winner

	// closing is set while the co-winner window is open; claims received
	// after windowDeadline are too late even if the timer has not fired yet
	closing        bool
	windowDeadline time.Time
	graceGen       int
	graceTimer     *time.Timer

	lastActive time.Time

	autoGen      int
	autoTimer    *time.Timer
	autoInterval time.Duration

	store       Store
	broadcaster Broadcaster
	opts        Options
	rng         *rand.Rand
	log         *logrus.Entry
}

func newRoom(model models.Room, store Store, b Broadcaster, opts Options) *Room {
	opts = opts.withDefaults()
	rng := opts.newRand()
	return &Room{
		Code:        model.Code,
		room:        model,
		players:     make(map[uuid.UUID]*models.Player),
		seq:         bingo.NewCallSequence(rng),
		store:       store,
		broadcaster: b,
		opts:        opts,
		rng:         rng,
		log:         opts.Logger.WithField("room", model.Code),
		lastActive:  opts.Now(),
	}
}

// IdleSince reports when the room last changed. ok is false while a timer
// is still going to act on the room.
func (r *Room) IdleSince() (t time.Time, ok bool) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if r.closing || r.autoTimer != nil {
		return time.Time{}, false
	}
	return r.lastActive, true
}

// Model returns a copy of the room record.
func (r *Room) Model() models.Room {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.modelLocked()
}

func (r *Room) modelLocked() models.Room {
	m := r.room
	m.Patterns = append([]bingo.Pattern(nil), r.room.Patterns...)
	return m
}

// IsHost reports whether id created this room.
func (r *Room) IsHost(id uuid.UUID) bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return id != uuid.Nil && id == r.room.HostID
}

func (r *Room) requireHostLocked(actor uuid.UUID) error {
	if actor == uuid.Nil || actor != r.room.HostID {
		return fmt.Errorf("only the host can do that: %w", models.ErrForbidden)
	}
	return nil
}

// emit stamps and publishes an event. Callers hold Mu so events leave in
// the order their state changes were applied.
func (r *Room) emit(ev Event) {
	ev.Room = r.Code
	if ev.Epoch == 0 {
		ev.Epoch = r.room.Epoch
	}
	ev.At = r.opts.Now()
	r.lastActive = ev.At
	if r.broadcaster != nil {
		r.broadcaster.Broadcast(ev)
	}
}

func (r *Room) logger() *logrus.Entry {
	return r.log.WithFields(logrus.Fields{"epoch": r.room.Epoch, "state": r.room.State})
}

// Join seats a new player and issues their card. Joining again with the
// same id returns the existing seat unchanged.
func (r *Room) Join(ctx context.Context, id uuid.UUID, name string) (*models.Player, error) {
	name, err := models.NormalizeName(name)
	if err != nil {
		return nil, err
	}
	if id == uuid.Nil {
		id = uuid.New()
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()

	if p, ok := r.players[id]; ok {
		cp := *p
		return &cp, nil
	}
	key := models.NameKey(name)
	for _, p := range r.players {
		if models.NameKey(p.Name) == key {
			return nil, fmt.Errorf("name %q is already taken in this room: %w", name, models.ErrConflict)
		}
	}

	p := &models.Player{
		ID:       id,
		RoomCode: r.Code,
		Name:     name,
		Card:     bingo.GenerateCard(r.rng),
		JoinedAt: r.opts.Now(),
	}
	if err := r.store.AddPlayer(ctx, p); err != nil {
		return nil, fmt.Errorf("add player: %w", err)
	}
	r.players[id] = p
	r.order = append(r.order, id)

	r.emit(Event{Type: EventPlayerJoined, Player: &EventPlayer{ID: p.ID, Name: p.Name}})
	r.logger().WithField("player", p.ID).Info("player joined")

	cp := *p
	return &cp, nil
}

// Leave removes the calling player from the room.
func (r *Room) Leave(ctx context.Context, id uuid.UUID) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.removeLocked(ctx, id)
}

// Kick lets the host remove a player.
func (r *Room) Kick(ctx context.Context, actor, id uuid.UUID) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if err := r.requireHostLocked(actor); err != nil {
		return err
	}
	return r.removeLocked(ctx, id)
}

func (r *Room) removeLocked(ctx context.Context, id uuid.UUID) error {
	p, ok := r.players[id]
	if !ok {
		return fmt.Errorf("player %s: %w", id, models.ErrNotFound)
	}
	if err := r.store.RemovePlayer(ctx, r.Code, id); err != nil {
		return fmt.Errorf("remove player: %w", err)
	}
	delete(r.players, id)
	for i, pid := range r.order {
		if pid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.emit(Event{Type: EventPlayerLeft, Player: &EventPlayer{ID: p.ID, Name: p.Name}})
	r.logger().WithField("player", id).Info("player left")
	return nil
}

// SetPatterns replaces the enabled win patterns. Only allowed in the lobby.
func (r *Room) SetPatterns(ctx context.Context, actor uuid.UUID, patterns []bingo.Pattern) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if err := r.requireHostLocked(actor); err != nil {
		return err
	}
	if r.room.State != models.RoomLobby {
		return fmt.Errorf("patterns are locked while the room is %s: %w", r.room.State, models.ErrStaleState)
	}

	next := r.modelLocked()
	next.Patterns = bingo.Normalize(patterns)
	next.UpdatedAt = r.opts.Now()
	if err := r.store.UpdateRoom(ctx, &next, models.RoomLobby); err != nil {
		return fmt.Errorf("update patterns: %w", err)
	}
	r.room = next
	r.emit(Event{Type: EventPatternsUpdated, Patterns: next.Patterns})
	return nil
}

// SetAnnounce toggles whether presenters read calls aloud.
func (r *Room) SetAnnounce(ctx context.Context, actor uuid.UUID, on bool) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if err := r.requireHostLocked(actor); err != nil {
		return err
	}

	next := r.modelLocked()
	next.Announce = on
	next.UpdatedAt = r.opts.Now()
	if err := r.store.UpdateRoom(ctx, &next, r.room.State); err != nil {
		return fmt.Errorf("update announce: %w", err)
	}
	r.room = next
	r.emit(Event{Type: EventAnnounceUpdated, Announce: &on})
	return nil
}

// Start moves the room from lobby to active and locks the pattern set.
func (r *Room) Start(ctx context.Context, actor uuid.UUID) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if err := r.requireHostLocked(actor); err != nil {
		return err
	}
	if r.room.State != models.RoomLobby {
		return fmt.Errorf("cannot start a room that is %s: %w", r.room.State, models.ErrStaleState)
	}

	next := r.modelLocked()
	next.State = models.RoomActive
	next.Outcome = models.OutcomeNone
	next.UpdatedAt = r.opts.Now()
	if err := r.store.UpdateRoom(ctx, &next, models.RoomLobby); err != nil {
		return fmt.Errorf("start room: %w", err)
	}
	r.room = next
	r.emit(Event{Type: EventGameStarted, State: next.State, Patterns: next.Patterns})
	r.logger().Info("game started")
	return nil
}

// CallNext draws, persists and broadcasts the next number. Once every
// number is out the room finishes as a draw and ErrSequenceExhausted is
// returned.
func (r *Room) CallNext(ctx context.Context, actor uuid.UUID) (models.Call, error) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if err := r.requireHostLocked(actor); err != nil {
		return models.Call{}, err
	}
	return r.callNextLocked(ctx)
}

func (r *Room) callNextLocked(ctx context.Context) (models.Call, error) {
	if r.room.State != models.RoomActive {
		return models.Call{}, fmt.Errorf("cannot call while the room is %s: %w", r.room.State, models.ErrStaleState)
	}
	if r.closing {
		return models.Call{}, fmt.Errorf("calling is halted while claims are checked: %w", models.ErrStaleState)
	}

	n, ok := r.seq.Next()
	if !ok {
		if err := r.finishLocked(ctx, models.OutcomeDraw); err != nil {
			return models.Call{}, err
		}
		return models.Call{}, models.ErrSequenceExhausted
	}

	call := models.Call{
		RoomCode: r.Code,
		Epoch:    r.room.Epoch,
		Seq:      len(r.calls) + 1,
		Number:   n,
		CalledAt: r.opts.Now(),
	}
	if err := r.store.AppendCall(ctx, call); err != nil {
		if uerr := r.seq.Unread(n); uerr != nil {
			r.logger().WithError(uerr).Error("could not roll back draw")
		}
		r.logger().WithError(err).WithField("number", n).Warn("call not recorded, draw rolled back")
		return models.Call{}, fmt.Errorf("record call %d: %w", n, err)
	}
	r.calls = append(r.calls, n)
	r.emit(Event{Type: EventNumberCalled, Number: n, Label: bingo.Label(n), Seq: call.Seq})
	return call, nil
}

// StartAutoCall calls a number every interval until stopped, the room
// leaves active, or a claim window opens.
func (r *Room) StartAutoCall(actor uuid.UUID, interval time.Duration) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if err := r.requireHostLocked(actor); err != nil {
		return err
	}
	if interval <= 0 {
		return fmt.Errorf("auto-call interval must be positive: %w", models.ErrInvalidInput)
	}
	if r.room.State != models.RoomActive || r.closing {
		return fmt.Errorf("cannot auto-call while the room is %s: %w", r.room.State, models.ErrStaleState)
	}

	r.stopAutoCallLocked()
	r.autoInterval = interval
	r.scheduleAutoCallLocked()
	r.emit(Event{Type: EventAutoCallUpdated, IntervalMs: interval.Milliseconds()})
	return nil
}

// StopAutoCall cancels a running auto-call timer. Stopping when nothing is
// running is a no-op.
func (r *Room) StopAutoCall(actor uuid.UUID) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if err := r.requireHostLocked(actor); err != nil {
		return err
	}
	running := r.autoInterval > 0
	r.stopAutoCallLocked()
	if running {
		r.emit(Event{Type: EventAutoCallUpdated})
	}
	return nil
}

func (r *Room) scheduleAutoCallLocked() {
	gen := r.autoGen
	r.autoTimer = time.AfterFunc(r.autoInterval, func() { r.autoTick(gen) })
}

// stopAutoCallLocked bumps the generation first so a timer that already
// fired and is waiting on Mu sees it is stale.
func (r *Room) stopAutoCallLocked() {
	r.autoGen++
	if r.autoTimer != nil {
		r.autoTimer.Stop()
		r.autoTimer = nil
	}
	r.autoInterval = 0
}

func (r *Room) autoTick(gen int) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if gen != r.autoGen {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.opts.OpTimeout)
	defer cancel()
	if _, err := r.callNextLocked(ctx); err != nil {
		if errors.Is(err, models.ErrStaleState) || errors.Is(err, models.ErrSequenceExhausted) {
			r.stopAutoCallLocked()
			return
		}
		r.logger().WithError(err).Warn("auto-call tick failed")
	}
	if gen == r.autoGen {
		r.scheduleAutoCallLocked()
	}
}

// openWindowLocked halts calling after the first accepted claim and
// schedules finalization.
func (r *Room) openWindowLocked(ctx context.Context) {
	r.closing = true
	r.windowDeadline = r.opts.Now().Add(r.opts.GraceWindow)
	r.stopAutoCallLocked()
	if r.opts.GraceWindow <= 0 {
		if err := r.finishLocked(ctx, models.OutcomeWon); err != nil {
			r.logger().WithError(err).Error("finalizing winners failed, will retry")
			r.scheduleFinalizeLocked(finalizeRetryDelay)
		}
		return
	}
	r.scheduleFinalizeLocked(r.opts.GraceWindow)
}

func (r *Room) scheduleFinalizeLocked(d time.Duration) {
	r.cancelGraceLocked()
	gen := r.graceGen
	r.graceTimer = time.AfterFunc(d, func() { r.closeWindow(gen) })
}

func (r *Room) cancelGraceLocked() {
	r.graceGen++
	if r.graceTimer != nil {
		r.graceTimer.Stop()
		r.graceTimer = nil
	}
}

func (r *Room) closeWindow(gen int) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if gen != r.graceGen || !r.closing || r.room.State != models.RoomActive {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.opts.OpTimeout)
	defer cancel()
	if err := r.finishLocked(ctx, models.OutcomeWon); err != nil {
		r.logger().WithError(err).Error("finalizing winners failed, will retry")
		r.scheduleFinalizeLocked(finalizeRetryDelay)
	}
}

// finishLocked performs the guarded active -> finished transition.
func (r *Room) finishLocked(ctx context.Context, outcome models.Outcome) error {
	next := r.modelLocked()
	next.State = models.RoomFinished
	next.Outcome = outcome
	next.UpdatedAt = r.opts.Now()
	err := r.store.UpdateRoom(ctx, &next, models.RoomActive)
	if err != nil && !errors.Is(err, models.ErrStaleState) {
		return fmt.Errorf("finish room: %w", err)
	}
	if err != nil {
		// already finished in the store, e.g. by an earlier attempt whose reply was lost
		r.logger().WithError(err).Warn("room was already finished in store")
	}

	r.room = next
	r.closing = false
	r.windowDeadline = time.Time{}
	r.cancelGraceLocked()
	r.stopAutoCallLocked()

	switch outcome {
	case models.OutcomeWon:
		r.emit(Event{
			Type:    EventWinnerDeclared,
			State:   next.State,
			Outcome: outcome,
			Winners: append([]models.Winner(nil), r.winners...),
		})
	default:
		r.emit(Event{Type: EventGameOver, State: next.State, Outcome: outcome})
	}
	r.logger().WithFields(logrus.Fields{
		"outcome": outcome,
		"winners": len(r.winners),
		"calls":   len(r.calls),
	}).Info("game finished")
	return nil
}

// NewGame records the reset, halts all timers, tells everyone about it,
// then clears the call log and winners, bumps the epoch, deals fresh cards
// and returns the room to the lobby. A failed write announces nothing.
func (r *Room) NewGame(ctx context.Context, actor uuid.UUID) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if err := r.requireHostLocked(actor); err != nil {
		return err
	}
	if r.room.State == models.RoomLobby {
		return fmt.Errorf("no game to reset: %w", models.ErrStaleState)
	}

	prev := r.room.State
	next := r.modelLocked()
	next.State = models.RoomLobby
	next.Outcome = models.OutcomeNone
	next.Epoch = r.room.Epoch + 1
	next.UpdatedAt = r.opts.Now()

	// timers are stopped only once the reset is stored
	if err := r.store.UpdateRoom(ctx, &next, prev); err != nil {
		return fmt.Errorf("reset room: %w", err)
	}
	r.stopAutoCallLocked()
	r.cancelGraceLocked()
	r.emit(Event{Type: EventGameReset, Epoch: next.Epoch, State: next.State, Patterns: next.Patterns})

	r.room = next
	r.closing = false
	r.windowDeadline = time.Time{}
	r.seq.Reset()
	r.calls = nil
	r.winners = nil

	for _, id := range r.order {
		p := r.players[id]
		card := bingo.GenerateCard(r.rng)
		if err := r.store.UpdatePlayerCard(ctx, r.Code, id, card); err != nil {
			r.logger().WithError(err).WithField("player", id).Warn("could not reissue card, keeping previous one")
			continue
		}
		p.Card = card
	}
	r.logger().Info("new game")
	return nil
}

// Close stops the room's timers without changing any state.
func (r *Room) Close() {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.stopAutoCallLocked()
	r.cancelGraceLocked()
}

// PlayerView is the public part of a player.
type PlayerView struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Snapshot is the authoritative room state used for reconnect and replay.
// You is only set when the viewer is seated, and carries their card.
type Snapshot struct {
	Room            models.Room     `json:"room"`
	Calls           []int           `json:"calls"`
	Remaining       int             `json:"remaining"`
	Players         []PlayerView    `json:"players"`
	Winners         []models.Winner `json:"winners"`
	ClaimWindowOpen bool            `json:"claim_window_open"`
	AutoCallMs      int64           `json:"autocall_ms"`
	You             *models.Player  `json:"you,omitempty"`
}

// Snapshot returns the current state as seen by viewer.
func (r *Room) Snapshot(viewer uuid.UUID) Snapshot {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	snap := Snapshot{
		Room:            r.modelLocked(),
		Calls:           append([]int{}, r.calls...),
		Remaining:       r.seq.Remaining(),
		Players:         make([]PlayerView, 0, len(r.order)),
		Winners:         append([]models.Winner{}, r.winners...),
		ClaimWindowOpen: r.closing,
		AutoCallMs:      r.autoInterval.Milliseconds(),
	}
	for _, id := range r.order {
		p := r.players[id]
		snap.Players = append(snap.Players, PlayerView{ID: p.ID, Name: p.Name})
		if id == viewer {
			cp := *p
			snap.You = &cp
		}
	}
	return snap
}
