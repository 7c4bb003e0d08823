// Package game implements the pure Memory/Pexeso state machine: board
// layout, turn cursor, and flip/match resolution for one room's game
// instance. It performs no I/O and knows nothing about sockets or
// broadcasting; callers (the room registry, via the session handler) mutate
// a Game and turn its return values into wire responses.
//
// Grounded on the teacher's internal/game/state.go shape: a struct guarded by
// its own mutex, exposing Lock/Unlock plus pure mutator methods that return
// sentinel errors instead of panicking.
package game

import (
	"errors"
	"math/rand"
	"sync"

	"github.com/adamvoss/pexeso-server/internal/client"
)

// Status is the game's lifecycle state.
type Status int

const (
	StatusWaiting Status = iota
	StatusPlaying
	StatusFinished
)

// CardState is one board position's visibility.
type CardState int

const (
	CardHidden CardState = iota
	CardRevealed
	CardMatched
)

// Card is one board position.
type Card struct {
	Value int
	State CardState
}

// Player is one seat at the table: a non-owning client reference plus the
// per-game ready flag and score spec.md §3 requires.
type Player struct {
	Client *client.Client
	Ready  bool
	Score  int
}

var (
	ErrInvalidBoardSize  = errors.New("game: board size must be even and in [4, 8]")
	ErrNotEnoughPlayers  = errors.New("game: at least two players are required")
	ErrNotWaiting        = errors.New("game: not in WAITING state")
	ErrNotPlaying        = errors.New("game: not in PLAYING state")
	ErrNotAMember        = errors.New("game: client is not a player in this game")
	ErrNotYourTurn       = errors.New("game: not the client's turn")
	ErrTooManyFlips      = errors.New("game: both cards are already flipped this turn")
	ErrCardIndexOutOfRange = errors.New("game: card index out of range")
	ErrCardNotHidden     = errors.New("game: card is not hidden")
	ErrCheckNotReady     = errors.New("game: check_match called before two cards were flipped")
)

// MinBoardSize and MaxBoardSize bound the even board sizes accepted: 4x4,
// 6x6, 8x8 (spec.md's resolved Open Question — 8 is canonical, not 6).
const (
	MinBoardSize = 4
	MaxBoardSize = 8
)

// ValidBoardSize reports whether n is an even board dimension in
// [MinBoardSize, MaxBoardSize].
func ValidBoardSize(n int) bool {
	return n >= MinBoardSize && n <= MaxBoardSize && n%2 == 0
}

// Game is one room's in-progress (or not-yet-started) match.
type Game struct {
	mu sync.Mutex

	boardSize  int
	totalCards int
	totalPairs int

	board []Card

	players []*Player

	currentPlayerIndex int
	firstCardIndex     int
	secondCardIndex    int
	flipsThisTurn      int

	matchedPairs int
	state        Status
}

// New builds a game for boardSize x boardSize cards and the given seated
// players, shuffling the deck with rng (injected so tests can reproduce a
// fixed layout — the same pattern the teacher's dictionary uses for its own
// *rand.Rand field). The game starts in StatusWaiting.
func New(boardSize int, players []*client.Client, rng *rand.Rand) (*Game, error) {
	if !ValidBoardSize(boardSize) {
		return nil, ErrInvalidBoardSize
	}
	if len(players) < 2 {
		return nil, ErrNotEnoughPlayers
	}

	totalCards := boardSize * boardSize
	totalPairs := totalCards / 2

	values := make([]int, 0, totalCards)
	for v := 1; v <= totalPairs; v++ {
		values = append(values, v, v)
	}
	rng.Shuffle(len(values), func(i, j int) { values[i], values[j] = values[j], values[i] })

	board := make([]Card, totalCards)
	for i, v := range values {
		board[i] = Card{Value: v, State: CardHidden}
	}

	seated := make([]*Player, len(players))
	for i, c := range players {
		seated[i] = &Player{Client: c}
	}

	return &Game{
		boardSize:       boardSize,
		totalCards:      totalCards,
		totalPairs:      totalPairs,
		board:           board,
		players:         seated,
		firstCardIndex:  -1,
		secondCardIndex: -1,
		state:           StatusWaiting,
	}, nil
}

func (g *Game) Lock()   { g.mu.Lock() }
func (g *Game) Unlock() { g.mu.Unlock() }

// State returns the game's current status.
func (g *Game) State() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// BoardSize, TotalPairs, MatchedPairs are read-only dimension accessors.
func (g *Game) BoardSize() int { g.mu.Lock(); defer g.mu.Unlock(); return g.boardSize }

func (g *Game) TotalPairs() int { g.mu.Lock(); defer g.mu.Unlock(); return g.totalPairs }

func (g *Game) MatchedPairs() int { g.mu.Lock(); defer g.mu.Unlock(); return g.matchedPairs }

func (g *Game) FlipsThisTurn() int { g.mu.Lock(); defer g.mu.Unlock(); return g.flipsThisTurn }

// PlayerReady marks client as ready. Fails if the game isn't WAITING or the
// client isn't a seated player.
func (g *Game) PlayerReady(c *client.Client) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StatusWaiting {
		return ErrNotWaiting
	}
	p := g.findPlayerLocked(c)
	if p == nil {
		return ErrNotAMember
	}
	p.Ready = true
	return nil
}

// AllPlayersReady reports the conjunction of every seated player's ready
// flag.
func (g *Game) AllPlayersReady() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, p := range g.players {
		if !p.Ready {
			return false
		}
	}
	return true
}

// Start transitions WAITING -> PLAYING and resets the turn cursor to the
// first seated player.
func (g *Game) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StatusWaiting {
		return ErrNotWaiting
	}
	g.state = StatusPlaying
	g.currentPlayerIndex = 0
	return nil
}

// CurrentPlayer returns the client whose turn it is, or nil if the game
// isn't PLAYING.
func (g *Game) CurrentPlayer() *client.Client {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StatusPlaying {
		return nil
	}
	return g.players[g.currentPlayerIndex].Client
}

// IsFinished reports whether the game has reached StatusFinished.
func (g *Game) IsFinished() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == StatusFinished
}

// ReplacePlayerClient repoints every seated *Player whose Client is old to
// new — the game half of spec.md §4.6's reconnect back-reference repair.
// Index-based state (currentPlayerIndex, flip cursors) is untouched since
// seating order doesn't change. Reports the match count, since more than
// one hit is a bug spec.md calls out to repair rather than crash on.
func (g *Game) ReplacePlayerClient(old, new *client.Client) (matched int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, p := range g.players {
		if p.Client == old {
			p.Client = new
			matched++
		}
	}
	return matched
}

func (g *Game) findPlayerLocked(c *client.Client) *Player {
	for _, p := range g.players {
		if p.Client == c {
			return p
		}
	}
	return nil
}

// FlipCard reveals the card at index on behalf of c. It enforces that the
// game is PLAYING, it is c's turn, fewer than two cards are already flipped
// this turn, index is in range, and the card is HIDDEN. Returns the card's
// value so the caller can broadcast CARD_REVEAL, and reports whether this
// flip completed the pair (flipsThisTurn now == 2), in which case the caller
// must follow up with CheckMatch.
func (g *Game) FlipCard(c *client.Client, index int) (value int, readyToCheck bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StatusPlaying {
		return 0, false, ErrNotPlaying
	}
	if g.players[g.currentPlayerIndex].Client != c {
		return 0, false, ErrNotYourTurn
	}
	if g.flipsThisTurn >= 2 {
		return 0, false, ErrTooManyFlips
	}
	if index < 0 || index >= len(g.board) {
		return 0, false, ErrCardIndexOutOfRange
	}
	if g.board[index].State != CardHidden {
		return 0, false, ErrCardNotHidden
	}

	g.board[index].State = CardRevealed
	if g.flipsThisTurn == 0 {
		g.firstCardIndex = index
	} else {
		g.secondCardIndex = index
	}
	g.flipsThisTurn++

	return g.board[index].Value, g.flipsThisTurn == 2, nil
}

// MatchOutcome describes the result of resolving a completed pair of flips.
type MatchOutcome struct {
	Matched           bool
	ScorerIndex       int // index into Players() of the player credited on a match
	Finished          bool
	AdvancedToIndex   int // index into Players() of the next current player, valid on a mismatch
}

// CheckMatch resolves the two cards flipped this turn. It must only be
// called once FlipsThisTurn() == 2. On equal values both cards become
// MATCHED, the current player's score and matchedPairs increment, and the
// same player keeps the turn (or the game finishes if every pair is
// matched). On unequal values both cards return to HIDDEN and the turn
// cursor advances to the next seated player.
func (g *Game) CheckMatch() (MatchOutcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.flipsThisTurn != 2 {
		return MatchOutcome{}, ErrCheckNotReady
	}

	first, second := g.firstCardIndex, g.secondCardIndex
	matched := g.board[first].Value == g.board[second].Value

	outcome := MatchOutcome{Matched: matched}

	if matched {
		g.board[first].State = CardMatched
		g.board[second].State = CardMatched
		g.players[g.currentPlayerIndex].Score++
		g.matchedPairs++
		outcome.ScorerIndex = g.currentPlayerIndex

		if g.matchedPairs == g.totalPairs {
			g.state = StatusFinished
			outcome.Finished = true
		}
	} else {
		g.board[first].State = CardHidden
		g.board[second].State = CardHidden
		g.currentPlayerIndex = (g.currentPlayerIndex + 1) % len(g.players)
		outcome.AdvancedToIndex = g.currentPlayerIndex
	}

	g.firstCardIndex = -1
	g.secondCardIndex = -1
	g.flipsThisTurn = 0

	return outcome, nil
}

// Players returns a snapshot of the seated players (client, ready, score) in
// seating order. Callers must not mutate the returned slice's *Player
// pointers' fields; it is a read view.
func (g *Game) Players() []*Player {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]*Player, len(g.players))
	copy(out, g.players)
	return out
}

// GetWinners returns every seated player tied at the maximum score, in
// seating order.
func (g *Game) GetWinners() []*Player {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.players) == 0 {
		return nil
	}
	max := g.players[0].Score
	for _, p := range g.players[1:] {
		if p.Score > max {
			max = p.Score
		}
	}
	var winners []*Player
	for _, p := range g.players {
		if p.Score == max {
			winners = append(winners, p)
		}
	}
	return winners
}

// RemovePlayer collapses the seat belonging to c out of the player array,
// used when a disconnecting player must be dropped from a mid-play game
// without ending it (spec.md §4.5's "remove from game and room" path). The
// turn cursor is rebound so that whichever player would have followed next
// keeps following next, and flip-in-progress cursors belonging to the
// removed seat are cleared.
func (g *Game) RemovePlayer(c *client.Client) {
	g.mu.Lock()
	defer g.mu.Unlock()

	idx := -1
	for i, p := range g.players {
		if p.Client == c {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	wasCurrent := idx == g.currentPlayerIndex
	wasBeforeCurrent := idx < g.currentPlayerIndex

	g.players = append(g.players[:idx], g.players[idx+1:]...)

	if len(g.players) == 0 {
		g.currentPlayerIndex = 0
		return
	}

	switch {
	case wasBeforeCurrent:
		g.currentPlayerIndex--
	case wasCurrent:
		if g.currentPlayerIndex >= len(g.players) {
			g.currentPlayerIndex = 0
		}
		// currentPlayerIndex now already refers to the player who would have
		// followed the removed occupant, since the slice shifted down.
	}

	if wasCurrent && g.flipsThisTurn > 0 {
		if g.firstCardIndex >= 0 {
			g.board[g.firstCardIndex].State = CardHidden
		}
		if g.secondCardIndex >= 0 {
			g.board[g.secondCardIndex].State = CardHidden
		}
		g.firstCardIndex = -1
		g.secondCardIndex = -1
		g.flipsThisTurn = 0
	}
}

// Slots returns, for each board position, the card's value if MATCHED else
// 0 — the representation GAME_STATE serializes.
func (g *Game) Slots() []int {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]int, len(g.board))
	for i, c := range g.board {
		if c.State == CardMatched {
			out[i] = c.Value
		}
	}
	return out
}

// CurrentPlayerIndex returns the seating-order index of the player whose
// turn it is. Only meaningful while PLAYING.
func (g *Game) CurrentPlayerIndex() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentPlayerIndex
}
