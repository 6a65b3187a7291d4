package game

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/promptduel/promptduel/internal/ai"
	"github.com/promptduel/promptduel/internal/models"
	"github.com/promptduel/promptduel/internal/store"
)

// Repository interfaces satisfied by *database.DB. The engine only sees
// the slices of the durable store it needs, which keeps the game tests
// free of a live database.
type UserRepository interface {
	FindManyByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.User, error)
	AddPoints(ctx context.Context, userID uuid.UUID, delta int) error
}

type LobbyRepository interface {
	CreateLobby(ctx context.Context, player1ID, player2ID uuid.UUID, matchKey uuid.UUID) (*models.Lobby, error)
	// FinishLobby marks the row finished with its winner and credits the
	// win points in the same transaction. It reports whether this call
	// performed the transition; an already finished row yields false and
	// credits nothing, so a retried resolution never awards twice.
	FinishLobby(ctx context.Context, matchKey uuid.UUID, winnerID uuid.UUID, winPoints int) (bool, error)
	SetStatus(ctx context.Context, matchKey uuid.UUID, status string) error
}

type TaskRepository interface {
	CreateTask(ctx context.Context, lobbyID int64, prompt string) error
}

type AnswerRepository interface {
	BulkRecordAnswers(ctx context.Context, lobbyID int64, answers []models.ScoredAnswer) error
}

// Notifier delivers events to connected players and tracks which lobby a
// connection belongs to. Implementations must be safe for concurrent use
// and must tolerate offline recipients.
type Notifier interface {
	NotifyUser(userID uuid.UUID, ev Event)
	NotifyLobby(lobbyID uuid.UUID, ev Event)
	BindLobby(lobbyID, userID uuid.UUID)
	ReleaseLobby(lobbyID uuid.UUID)
}

// Config tunes round pacing and the reward policy.
type Config struct {
	RoundDuration time.Duration
	RetryDelay    time.Duration
	MaxAttempts   int
	Extension     time.Duration
	LobbyTTL      time.Duration
	WinPoints     int
	RefundPoints  int
}

func DefaultConfig() Config {
	return Config{
		RoundDuration: 60 * time.Second,
		RetryDelay:    10 * time.Second,
		MaxAttempts:   3,
		Extension:     30 * time.Second,
		LobbyTTL:      30 * time.Minute,
		WinPoints:     10,
		RefundPoints:  10,
	}
}

// Engine owns the lobby lifecycle: matchmaking, the phase state machine,
// answer collection, and winner resolution. All shared state lives in the
// store; the engine itself only holds in-process retry timers, so several
// instances can run against the same store.
type Engine struct {
	log       *logrus.Logger
	rdb       *redis.Client
	states    *StateStore
	queue     *Queue
	users     UserRepository
	lobbies   LobbyRepository
	tasks     TaskRepository
	answers   AnswerRepository
	generator ai.ChallengeGenerator
	scorer    ai.SimilarityScorer
	notifier  Notifier
	retries   *retryScheduler
	cfg       Config
}

func NewEngine(
	log *logrus.Logger,
	rdb *redis.Client,
	users UserRepository,
	lobbies LobbyRepository,
	tasks TaskRepository,
	answers AnswerRepository,
	generator ai.ChallengeGenerator,
	scorer ai.SimilarityScorer,
	notifier Notifier,
	cfg Config,
) *Engine {
	return &Engine{
		log:       log,
		rdb:       rdb,
		states:    NewStateStore(rdb, cfg.LobbyTTL),
		queue:     NewQueue(rdb),
		users:     users,
		lobbies:   lobbies,
		tasks:     tasks,
		answers:   answers,
		generator: generator,
		scorer:    scorer,
		notifier:  notifier,
		retries:   newRetryScheduler(),
		cfg:       cfg,
	}
}

// States exposes the state store for the socket layer's read paths.
func (e *Engine) States() *StateStore { return e.states }

// CreateOrJoin matches the player against the oldest waiting lobby, or
// opens a new one when none is available. Stale queue entries, whose
// records have expired, are skipped and discarded; a player re-requesting
// while their own lobby is still queued just keeps waiting.
func (e *Engine) CreateOrJoin(ctx context.Context, userID uuid.UUID) error {
	for {
		lobbyID, err := e.queue.Dequeue(ctx)
		if err != nil {
			return err
		}
		if lobbyID == uuid.Nil {
			return e.createLobby(ctx, userID)
		}

		st, err := e.states.Get(ctx, lobbyID)
		if errors.Is(err, ErrLobbyNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if st.Status != StatusWaiting {
			// Raced with a concurrent join; the entry is already dead.
			continue
		}
		if st.Player1 == userID {
			// The player's own lobby: put it back and keep waiting.
			if err := e.queue.Enqueue(ctx, lobbyID); err != nil {
				return err
			}
			e.notifier.NotifyUser(userID, NewEvent(EventSearching, nil))
			return nil
		}
		return e.joinLobby(ctx, st, userID)
	}
}

func (e *Engine) createLobby(ctx context.Context, userID uuid.UUID) error {
	st := &LobbyState{
		UUID:    uuid.New(),
		Player1: userID,
		Online1: true,
		Status:  StatusWaiting,
	}
	if err := e.states.CreateLobby(ctx, st); err != nil {
		return err
	}
	e.log.WithFields(logrus.Fields{
		"lobby_uuid": st.UUID,
		"user_id":    userID,
	}).Info("lobby created, waiting for opponent")
	e.notifier.BindLobby(st.UUID, userID)
	e.notifier.NotifyUser(userID, NewEvent(EventSearching, nil))
	return nil
}

func (e *Engine) joinLobby(ctx context.Context, st *LobbyState, userID uuid.UUID) error {
	row, err := e.lobbies.CreateLobby(ctx, st.Player1, userID, st.UUID)
	if err != nil {
		// Put the lobby back so the waiting player is not stranded.
		if qerr := e.queue.Enqueue(ctx, st.UUID); qerr != nil {
			e.log.WithError(qerr).WithField("lobby_uuid", st.UUID).Error("failed to requeue lobby")
		}
		return err
	}
	if err := e.states.AttachPlayer2(ctx, st.UUID, userID, row.ID); err != nil {
		return err
	}
	st.Player2 = userID
	st.DBID = row.ID

	e.notifier.BindLobby(st.UUID, st.Player1)
	e.notifier.BindLobby(st.UUID, userID)

	roster := e.roster(ctx, st)
	payload := JoinedPayload{LobbyUUID: st.UUID, Players: roster}
	e.notifier.NotifyUser(userID, NewEvent(EventJoined, payload))
	e.notifier.NotifyUser(st.Player1, NewEvent(EventOpponentJoined, payload))

	e.log.WithFields(logrus.Fields{
		"lobby_uuid": st.UUID,
		"lobby_id":   row.ID,
		"player1":    st.Player1,
		"player2":    userID,
	}).Info("lobby filled")

	go e.StartRound(context.WithoutCancel(ctx), st.UUID)
	return nil
}

// roster loads the public profile of each participant. A lookup failure
// degrades to ids only; it never blocks the match.
func (e *Engine) roster(ctx context.Context, st *LobbyState) []PlayerInfo {
	ids := st.Players()
	users, err := e.users.FindManyByIDs(ctx, ids)
	if err != nil {
		e.log.WithError(err).WithField("lobby_uuid", st.UUID).Warn("roster lookup failed")
		out := make([]PlayerInfo, len(ids))
		for i, id := range ids {
			out[i] = PlayerInfo{ID: id}
		}
		return out
	}
	out := make([]PlayerInfo, 0, len(users))
	for _, u := range users {
		out = append(out, PlayerInfo{ID: u.ID, Username: u.Username, Points: u.Points})
	}
	return out
}

// StartRound runs the guarded waiting-to-started transition: generate the
// challenge, persist its prompt, arm the deadline, and announce the round.
// Safe to call concurrently and repeatedly; the lock serializes executors
// and the attempt counter caps how often a failing generation is retried.
func (e *Engine) StartRound(ctx context.Context, lobbyID uuid.UUID) {
	st, err := e.states.Get(ctx, lobbyID)
	if errors.Is(err, ErrLobbyNotFound) {
		e.retries.cancelLobby(lobbyID)
		return
	}
	if err != nil {
		e.log.WithError(err).WithField("lobby_uuid", lobbyID).Error("start round: load failed")
		return
	}
	if st.Status != StatusReady && st.Status != StatusErrorStartGame {
		return
	}

	guard := e.guard(lobbyID, opStart, func(ctx context.Context) error {
		e.log.WithField("lobby_uuid", lobbyID).Error("start round attempts exhausted, terminating lobby")
		return e.forceTerminate(ctx, st, true)
	})
	ok, err := guard.Acquire(ctx, e.rdb)
	if err != nil {
		e.log.WithError(err).WithField("lobby_uuid", lobbyID).Error("start round: guard failed")
		return
	}
	if !ok {
		return
	}
	defer guard.Release(ctx, e.rdb)

	if err := e.startRoundBody(ctx, st); err != nil {
		e.log.WithError(err).WithField("lobby_uuid", lobbyID).Error("start round failed, scheduling retry")
		if serr := e.states.SetStatus(ctx, lobbyID, StatusErrorStartGame); serr != nil {
			e.log.WithError(serr).WithField("lobby_uuid", lobbyID).Error("failed to mark start error")
		}
		e.retries.schedule(retryKey(lobbyID, opStart), e.cfg.RetryDelay, func() {
			e.StartRound(context.Background(), lobbyID)
		})
		return
	}
	guard.ClearAttempts(ctx, e.rdb)
}

func (e *Engine) startRoundBody(ctx context.Context, st *LobbyState) error {
	if err := e.states.SetStatus(ctx, st.UUID, StatusGenerateTask); err != nil {
		return err
	}
	e.notifier.NotifyLobby(st.UUID, NewEvent(EventRoundStarting, nil))

	task, err := e.generator.Generate(ctx)
	if err != nil {
		return err
	}
	if err := e.tasks.CreateTask(ctx, st.DBID, task.Prompt); err != nil {
		return err
	}
	if err := e.states.SetTask(ctx, st.UUID, task); err != nil {
		return err
	}
	if err := e.states.SetStatus(ctx, st.UUID, StatusStarted); err != nil {
		return err
	}

	endAt := time.Now().Add(e.cfg.RoundDuration).UnixMilli()
	if err := e.states.SetDeadline(ctx, st.UUID, endAt); err != nil {
		return err
	}

	e.notifier.NotifyLobby(st.UUID, NewEvent(EventRoundStarted, RoundStartedPayload{
		Task:  task.Public(),
		EndAt: endAt,
	}))
	e.notifier.NotifyLobby(st.UUID, NewEvent(EventTimer, TimerPayload{EndAt: endAt}))
	e.log.WithFields(logrus.Fields{
		"lobby_uuid": st.UUID,
		"end_at":     endAt,
	}).Info("round started")
	return nil
}

// SubmitAnswer validates and stores a player's guess. The slot write is
// set-if-absent, so a duplicate submit returns ErrAlreadyAnswered without
// touching the first answer. When the second slot fills, round resolution
// kicks off immediately instead of waiting for the deadline.
func (e *Engine) SubmitAnswer(ctx context.Context, userID, lobbyID uuid.UUID, text string) error {
	st, err := e.states.Get(ctx, lobbyID)
	if err != nil {
		return err
	}
	if !st.HasPlayer(userID) {
		return ErrNotParticipant
	}
	if st.Status != StatusStarted {
		return ErrRoundNotStarted
	}
	now := time.Now().UnixMilli()
	if st.EndAt > 0 && now > st.EndAt {
		return ErrRoundClosed
	}

	ans := &models.Answer{
		UserID: userID,
		Text:   strings.TrimSpace(text),
		Time:   now - (st.EndAt - e.cfg.RoundDuration.Milliseconds()),
	}
	slot := st.Slot(userID)
	stored, err := e.states.PutAnswer(ctx, lobbyID, slot, ans)
	if err != nil {
		return err
	}
	if !stored {
		return ErrAlreadyAnswered
	}

	for _, p := range st.Players() {
		if p != userID {
			e.notifier.NotifyUser(p, NewEvent(EventOpponentAnswer, OpponentPayload{UserID: userID}))
		}
	}

	// Reload: the opponent may have answered concurrently. EndRound is
	// idempotent, a double trigger is harmless.
	if fresh, err := e.states.Get(ctx, lobbyID); err == nil && fresh.BothAnswered() {
		go e.EndRound(context.WithoutCancel(ctx), lobbyID)
	}
	return nil
}

// Typing relays a keystroke signal to the opponent. No state changes.
func (e *Engine) Typing(ctx context.Context, userID uuid.UUID, isTyping bool) {
	lobbyID, err := e.states.ActiveLobbyOf(ctx, userID)
	if err != nil || lobbyID == uuid.Nil {
		return
	}
	st, err := e.states.Get(ctx, lobbyID)
	if err != nil || !st.HasPlayer(userID) || st.Status != StatusStarted {
		return
	}
	for _, p := range st.Players() {
		if p != userID {
			e.notifier.NotifyUser(p, NewEvent(EventTyping, TypingPayload{UserID: userID, IsTyping: isTyping}))
		}
	}
}

// EndRound runs the guarded started-to-finished transition: score the
// answers, persist the outcome, award the winner, and tear the lobby
// down. Returns true when the round is conclusively over (finished,
// aborted, or the lobby is gone) and false when resolution should be
// retried later. Cheap pre-checks run before the lock so idempotent and
// premature invocations never consume an attempt.
func (e *Engine) EndRound(ctx context.Context, lobbyID uuid.UUID) bool {
	st, err := e.states.Get(ctx, lobbyID)
	if errors.Is(err, ErrLobbyNotFound) {
		e.retries.cancelLobby(lobbyID)
		return true
	}
	if err != nil {
		e.log.WithError(err).WithField("lobby_uuid", lobbyID).Error("end round: load failed")
		return false
	}
	if st.Status == StatusFinished {
		return true
	}
	if st.Status != StatusStarted && st.Status != StatusGenerateResult && st.Status != StatusErrorEndGame {
		return false
	}
	now := time.Now().UnixMilli()
	expired := st.EndAt > 0 && now >= st.EndAt
	if st.Status == StatusStarted && !st.BothAnswered() && !expired {
		return false
	}

	guard := e.guard(lobbyID, opEnd, func(ctx context.Context) error {
		e.log.WithField("lobby_uuid", lobbyID).Error("end round attempts exhausted, terminating lobby")
		return e.forceTerminate(ctx, st, false)
	})
	ok, err := guard.Acquire(ctx, e.rdb)
	if err != nil {
		e.log.WithError(err).WithField("lobby_uuid", lobbyID).Error("end round: guard failed")
		return false
	}
	if !ok {
		return false
	}
	defer guard.Release(ctx, e.rdb)

	over, err := e.endRoundBody(ctx, lobbyID)
	if err != nil {
		e.log.WithError(err).WithField("lobby_uuid", lobbyID).Error("end round failed, scheduling retry")
		if serr := e.states.SetStatus(ctx, lobbyID, StatusErrorEndGame); serr != nil {
			e.log.WithError(serr).WithField("lobby_uuid", lobbyID).Error("failed to mark end error")
		}
		e.retries.schedule(retryKey(lobbyID, opEnd), e.cfg.RetryDelay, func() {
			e.EndRound(context.Background(), lobbyID)
		})
		return false
	}
	if over {
		guard.ClearAttempts(ctx, e.rdb)
	}
	return over
}

func (e *Engine) endRoundBody(ctx context.Context, lobbyID uuid.UUID) (bool, error) {
	// Re-load under the lock: answers may have landed since the pre-check.
	st, err := e.states.Get(ctx, lobbyID)
	if errors.Is(err, ErrLobbyNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if st.Status == StatusFinished {
		return true, nil
	}

	answers := st.Answers()
	if len(answers) == 0 {
		// Deadline passed with no answers at all: nothing to score.
		if err := e.lobbies.SetStatus(ctx, st.UUID, models.LobbyRowAborted); err != nil {
			return false, err
		}
		e.notifier.NotifyLobby(st.UUID, NewEvent(EventRoundEnded, RoundEndedPayload{Aborted: true}))
		e.teardown(ctx, st)
		e.log.WithField("lobby_uuid", st.UUID).Info("round expired without answers, lobby aborted")
		return true, nil
	}

	if st.Task == nil {
		return false, errors.New("round has answers but no task")
	}

	if err := e.states.SetStatus(ctx, st.UUID, StatusGenerateResult); err != nil {
		return false, err
	}
	e.notifier.NotifyLobby(st.UUID, NewEvent(EventGeneratingScore, nil))

	scored, err := ScoreAnswers(ctx, e.scorer, st.Task.Prompt, answers)
	if err != nil {
		return false, err
	}
	winner, err := WinnerByScores(scored)
	if err != nil {
		return false, err
	}

	// Durable writes first, and each one tolerates a re-run: answer rows
	// upsert, and FinishLobby only credits the winner when it is the call
	// that performs the transition. A retry that re-enters after a late
	// failure therefore records nothing new and never awards twice.
	if err := e.answers.BulkRecordAnswers(ctx, st.DBID, scored); err != nil {
		return false, err
	}
	awarded, err := e.lobbies.FinishLobby(ctx, st.UUID, winner, e.cfg.WinPoints)
	if err != nil {
		return false, err
	}
	if !awarded {
		e.log.WithField("lobby_uuid", st.UUID).Info("lobby row already finished, skipping award")
	}
	if err := e.states.SetStatus(ctx, st.UUID, StatusFinished); err != nil {
		return false, err
	}

	e.notifier.NotifyLobby(st.UUID, NewEvent(EventRoundEnded, RoundEndedPayload{
		WinnerID: &winner,
		Prompt:   st.Task.Prompt,
		Scores:   scored,
	}))
	e.log.WithFields(logrus.Fields{
		"lobby_uuid": st.UUID,
		"winner":     winner,
	}).Info("round finished")

	e.teardown(ctx, st)
	return true, nil
}

// Disconnect handles a socket drop. A lobby still waiting for an opponent
// dies with its only player; a full lobby keeps running and just marks
// the seat offline so the player can reconnect.
func (e *Engine) Disconnect(ctx context.Context, userID uuid.UUID) {
	lobbyID, err := e.states.ActiveLobbyOf(ctx, userID)
	if err != nil || lobbyID == uuid.Nil {
		return
	}
	st, err := e.states.Get(ctx, lobbyID)
	if errors.Is(err, ErrLobbyNotFound) {
		if cerr := e.states.ClearReverseIndex(ctx, userID); cerr != nil {
			e.log.WithError(cerr).WithField("user_id", userID).Warn("failed to clear reverse index")
		}
		return
	}
	if err != nil {
		e.log.WithError(err).WithField("lobby_uuid", lobbyID).Error("disconnect: load failed")
		return
	}

	if st.Player2 == uuid.Nil {
		e.log.WithField("lobby_uuid", lobbyID).Info("sole player left, destroying waiting lobby")
		e.teardown(ctx, st)
		return
	}
	if err := e.states.SetOnline(ctx, lobbyID, st.Slot(userID), false); err != nil {
		e.log.WithError(err).WithField("lobby_uuid", lobbyID).Warn("failed to mark player offline")
	}
}

// Reconnect restores a returning player's session. Returns the masked
// lobby snapshot, or ErrLobbyNotFound when the player has no live lobby.
func (e *Engine) Reconnect(ctx context.Context, userID uuid.UUID) (*LobbyView, error) {
	lobbyID, err := e.states.ActiveLobbyOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	if lobbyID == uuid.Nil {
		return nil, ErrLobbyNotFound
	}
	st, err := e.states.Get(ctx, lobbyID)
	if errors.Is(err, ErrLobbyNotFound) {
		if cerr := e.states.ClearReverseIndex(ctx, userID); cerr != nil {
			e.log.WithError(cerr).WithField("user_id", userID).Warn("failed to clear reverse index")
		}
		return nil, ErrLobbyNotFound
	}
	if err != nil {
		return nil, err
	}
	slot := st.Slot(userID)
	if slot == 0 {
		return nil, ErrNotParticipant
	}
	if err := e.states.SetOnline(ctx, lobbyID, slot, true); err != nil {
		e.log.WithError(err).WithField("lobby_uuid", lobbyID).Warn("failed to mark player online")
	}
	e.notifier.BindLobby(lobbyID, userID)

	view := &LobbyView{
		LobbyUUID: st.UUID,
		Status:    st.Status.String(),
		Players:   e.roster(ctx, st),
		EndAt:     st.EndAt,
	}
	if st.Task != nil {
		pub := st.Task.Public()
		view.Task = &pub
	}
	if own := st.AnswerInSlot(slot); own != nil {
		view.YourAnswer = own.Text
	}
	other := 1
	if slot == 1 {
		other = 2
	}
	view.OpponentAnswered = st.AnswerInSlot(other) != nil
	return view, nil
}

// HandleDeadline is the timer poller's callback. It reports whether the
// lobby's round is conclusively over.
func (e *Engine) HandleDeadline(ctx context.Context, lobbyID uuid.UUID) bool {
	e.log.WithField("lobby_uuid", lobbyID).Debug("round deadline fired")
	return e.EndRound(ctx, lobbyID)
}

// forceTerminate aborts a lobby whose transition budget is exhausted.
// With refund, both players receive consolation points for the broken
// match.
func (e *Engine) forceTerminate(ctx context.Context, st *LobbyState, refund bool) error {
	if st.DBID != 0 {
		if err := e.lobbies.SetStatus(ctx, st.UUID, models.LobbyRowAborted); err != nil {
			e.log.WithError(err).WithField("lobby_uuid", st.UUID).Error("failed to mark lobby aborted")
		}
	}
	if refund {
		for _, p := range st.Players() {
			if err := e.users.AddPoints(ctx, p, e.cfg.RefundPoints); err != nil {
				e.log.WithError(err).WithFields(logrus.Fields{
					"lobby_uuid": st.UUID,
					"user_id":    p,
				}).Error("failed to refund player")
			}
		}
	}
	e.notifier.NotifyLobby(st.UUID, NewEvent(EventError, ErrorPayload{
		Code:    "lobby_terminated",
		Message: "the match could not be completed",
	}))
	e.notifier.NotifyLobby(st.UUID, NewEvent(EventRoundEnded, RoundEndedPayload{Aborted: true}))
	e.teardown(ctx, st)
	return nil
}

// teardown removes every trace of the lobby from the store and cancels
// any pending in-process retries.
func (e *Engine) teardown(ctx context.Context, st *LobbyState) {
	if err := e.states.Destroy(ctx, st); err != nil {
		e.log.WithError(err).WithField("lobby_uuid", st.UUID).Error("lobby teardown failed")
	}
	e.notifier.ReleaseLobby(st.UUID)
	e.retries.cancelLobby(st.UUID)
}

func (e *Engine) guard(lobbyID uuid.UUID, op string, onMax func(context.Context) error) *store.GuardedAttempt {
	return &store.GuardedAttempt{
		LockKey:              lockKey(lobbyID, op),
		AttemptsKey:          attemptsKey(lobbyID, op),
		MaxAttempts:          e.cfg.MaxAttempts,
		OnMaxAttemptsReached: onMax,
		// Contention is not a failure: try again after the holder is done.
		OnLockBusy: func() {
			e.log.WithFields(logrus.Fields{
				"lobby_uuid": lobbyID,
				"op":         op,
			}).Debug("transition lock busy, rescheduling")
			e.retries.schedule(retryKey(lobbyID, op), e.cfg.RetryDelay, func() {
				switch op {
				case opStart:
					e.StartRound(context.Background(), lobbyID)
				case opEnd:
					e.EndRound(context.Background(), lobbyID)
				}
			})
		},
	}
}
