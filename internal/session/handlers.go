package session

import (
	"strconv"
	"time"

	"github.com/adamvoss/pexeso-server/internal/client"
	"github.com/adamvoss/pexeso-server/internal/game"
	"github.com/adamvoss/pexeso-server/internal/protocol"
	"github.com/adamvoss/pexeso-server/internal/room"
)

func (s *Session) handleHello(msg protocol.Message) (closed bool) {
	if s.client.State() != client.StateConnected {
		return s.sendError(protocol.ErrAlreadyAuthenticated, "")
	}

	fields := msg.Fields()
	if len(fields) == 0 {
		return s.sendError(protocol.ErrInvalidSyntax, "HELLO requires a nickname")
	}
	nick := fields[0]
	if len(nick) == 0 || len(nick) > client.MaxNicknameLength {
		return s.sendError(protocol.ErrInvalidParams, "nickname length must be 1..31")
	}

	s.client.SetNickname(nick)
	s.client.SetState(client.StateInLobby)
	s.client.Send(protocol.Welcome(s.client.ID(), ""))
	return false
}

func (s *Session) requireAuthenticated() (closed bool, ok bool) {
	if !s.client.State().AtLeastLobby() {
		return s.sendError(protocol.ErrNotAuthenticated, ""), false
	}
	return false, true
}

func (s *Session) handleListRooms(msg protocol.Message) (closed bool) {
	if closed, ok := s.requireAuthenticated(); !ok {
		return closed
	}
	s.client.Send(protocol.RoomList(s.rooms.List()))
	return false
}

func (s *Session) handleCreateRoom(msg protocol.Message) (closed bool) {
	if closed, ok := s.requireAuthenticated(); !ok {
		return closed
	}
	if s.client.RoomID() != 0 {
		return s.sendError(protocol.ErrAlreadyInRoom, "")
	}

	fields := msg.Fields()
	if len(fields) != 3 {
		return s.sendError(protocol.ErrInvalidSyntax, "CREATE_ROOM <name> <max_players> <board_size>")
	}
	name := fields[0]
	maxPlayers, err1 := strconv.Atoi(fields[1])
	boardSize, err2 := strconv.Atoi(fields[2])
	if err1 != nil || err2 != nil {
		return s.sendError(protocol.ErrInvalidSyntax, "max_players and board_size must be integers")
	}
	if len(name) == 0 || len(name) > room.MaxNameLength {
		return s.sendError(protocol.ErrInvalidParams, "room name length must be 1..63")
	}
	if maxPlayers < room.MinPlayers || maxPlayers > room.MaxPlayers {
		return s.sendError(protocol.ErrInvalidParams, "max_players must be 2..4")
	}
	if !game.ValidBoardSize(boardSize) {
		return s.sendError(protocol.ErrInvalidParams, "board_size must be even in 4..8")
	}

	r, err := s.rooms.Create(name, maxPlayers, boardSize)
	if err != nil {
		return s.sendError(protocol.ErrRoomLimit, "")
	}
	if err := r.AddPlayer(s.client); err != nil {
		return s.sendError(protocol.ErrRoomFull, "")
	}
	s.client.SetState(client.StateInRoom)
	s.client.SetRoomID(r.ID())
	s.client.Send(protocol.RoomCreated(r.ID(), r.Name()))
	return false
}

func (s *Session) handleJoinRoom(msg protocol.Message) (closed bool) {
	if closed, ok := s.requireAuthenticated(); !ok {
		return closed
	}
	if s.client.RoomID() != 0 {
		return s.sendError(protocol.ErrAlreadyInRoom, "")
	}

	fields := msg.Fields()
	if len(fields) != 1 {
		return s.sendError(protocol.ErrInvalidSyntax, "JOIN_ROOM <room_id>")
	}
	roomID, err := strconv.Atoi(fields[0])
	if err != nil {
		return s.sendError(protocol.ErrInvalidSyntax, "room_id must be an integer")
	}

	r, ok := s.rooms.FindByID(roomID)
	if !ok {
		return s.sendError(protocol.ErrRoomNotFound, "")
	}
	if err := r.AddPlayer(s.client); err != nil {
		if err == room.ErrAlreadyInRoom {
			return s.sendError(protocol.ErrAlreadyInRoom, "")
		}
		return s.sendError(protocol.ErrRoomFull, "")
	}

	s.client.SetState(client.StateInRoom)
	s.client.SetRoomID(r.ID())
	r.BroadcastExcept(s.client, protocol.PlayerJoined(s.client.Nickname()))
	s.client.Send(protocol.RoomJoined(r.ID(), r.Name()))
	return false
}

func (s *Session) handleLeaveRoom(msg protocol.Message) (closed bool) {
	r := s.currentRoom()
	if r == nil {
		return s.sendError(protocol.ErrNotInRoom, "")
	}

	s.rooms.RemovePlayerCascade(r, s.client)
	s.client.SetRoomID(0)
	s.client.SetState(client.StateInLobby)
	s.client.Send(protocol.LeftRoom())
	return false
}

func (s *Session) handleStartGame(msg protocol.Message) (closed bool) {
	r := s.currentRoom()
	if r == nil {
		return s.sendError(protocol.ErrNotInRoom, "")
	}
	if r.Owner() != s.client {
		return s.sendError(protocol.ErrNotRoomOwner, "")
	}
	if r.Game() != nil {
		return s.sendError(protocol.ErrInvalidMove, "game already created")
	}
	if r.PlayerCount() != r.MaxPlayers() {
		return s.sendError(protocol.ErrNeedMorePlayers, "")
	}

	if _, err := r.CreateGame(s.rng.Next()); err != nil {
		return s.sendError(protocol.ErrNeedMorePlayers, "")
	}
	r.Broadcast(protocol.GameCreated(r.BoardSize(), "send READY when you are ready to play"))
	return false
}

func (s *Session) handleReady(msg protocol.Message) (closed bool) {
	r := s.currentRoom()
	if r == nil {
		return s.sendError(protocol.ErrNotInRoom, "")
	}
	g := r.Game()
	if g == nil {
		return s.sendError(protocol.ErrGameNotStarted, "")
	}
	if err := g.PlayerReady(s.client); err != nil {
		return s.sendError(protocol.ErrInvalidMove, "")
	}

	s.client.Send(protocol.ReadyOK())
	r.BroadcastExcept(s.client, protocol.PlayerReady(s.client.Nickname()))

	if !g.AllPlayersReady() {
		return false
	}
	if err := r.BeginPlay(); err != nil {
		return false
	}

	players := g.Players()
	nicks := make([]string, len(players))
	for i, p := range players {
		nicks[i] = p.Client.Nickname()
		p.Client.SetState(client.StateInGame)
	}
	r.Broadcast(protocol.GameStart(g.BoardSize(), nicks))
	if cur := g.CurrentPlayer(); cur != nil {
		cur.Send(protocol.YourTurn())
	}
	return false
}

func (s *Session) handleFlip(msg protocol.Message) (closed bool) {
	r := s.currentRoom()
	if r == nil {
		return s.sendError(protocol.ErrNotInRoom, "")
	}
	g := r.Game()
	if g == nil || g.State() != game.StatusPlaying {
		return s.sendError(protocol.ErrGameNotStarted, "")
	}

	fields := msg.Fields()
	if len(fields) != 1 {
		return s.sendError(protocol.ErrInvalidSyntax, "FLIP <card_index>")
	}
	index, err := strconv.Atoi(fields[0])
	if err != nil {
		return s.sendError(protocol.ErrInvalidSyntax, "card_index must be an integer")
	}

	value, readyToCheck, err := g.FlipCard(s.client, index)
	if err != nil {
		switch err {
		case game.ErrNotYourTurn:
			return s.sendError(protocol.ErrNotYourTurn, "")
		case game.ErrCardIndexOutOfRange, game.ErrCardNotHidden:
			return s.sendError(protocol.ErrInvalidCard, "")
		case game.ErrTooManyFlips:
			return s.sendError(protocol.ErrInvalidMove, "")
		default:
			return s.sendError(protocol.ErrGameNotStarted, "")
		}
	}

	r.Broadcast(protocol.CardReveal(index, value, s.client.Nickname()))

	if !readyToCheck {
		return false
	}

	outcome, err := g.CheckMatch()
	if err != nil {
		return false
	}

	players := g.Players()

	if outcome.Matched {
		scorer := players[outcome.ScorerIndex]
		r.Broadcast(protocol.Match(scorer.Client.Nickname(), scorer.Score))

		if outcome.Finished {
			s.finishGame(r, g)
			return false
		}
		scorer.Client.Send(protocol.YourTurn())
		return false
	}

	next := players[outcome.AdvancedToIndex]
	r.Broadcast(protocol.Mismatch(next.Client.Nickname()))
	next.Client.Send(protocol.YourTurn())
	return false
}

// finishGame handles a game's natural conclusion (matched_pairs ==
// total_pairs): broadcast GAME_END with every tied-for-first winner's score
// (spec.md's Open Question resolution: printed against that player's own
// index, never reindexed against the winner sublist) and mark the room
// FINISHED. Seated players stay in the (now finished, lobby-hidden) room
// until they individually LEAVE_ROOM — nothing in spec.md evicts them
// automatically on a natural finish, only on departure.
func (s *Session) finishGame(r *room.Room, g *game.Game) {
	r.Finish()

	winners := g.GetWinners()
	scores := make([]protocol.ScoreLine, len(winners))
	for i, p := range winners {
		scores[i] = protocol.ScoreLine{Nick: p.Client.Nickname(), Score: p.Score}
	}
	r.Broadcast(protocol.GameEnd(scores))

	for _, p := range g.Players() {
		p.Client.SetState(client.StateInRoom)
	}
}

func (s *Session) handlePong(msg protocol.Message) (closed bool) {
	s.client.MarkPongReceived(time.Now())
	return false
}
