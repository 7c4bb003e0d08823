package protocol

import (
	"strconv"
	"strings"
)

// join joins tokens with single spaces and appends the line's LF terminator.
func join(tokens ...string) string {
	return strings.Join(tokens, " ") + "\n"
}

func Welcome(clientID int, message string) string {
	if message == "" {
		return join("WELCOME", strconv.Itoa(clientID))
	}
	return join("WELCOME", strconv.Itoa(clientID), message)
}

func Error(code string, detail string) string {
	if detail == "" {
		return join("ERROR", code)
	}
	return join("ERROR", code, detail)
}

func RoomCreated(roomID int, name string) string {
	return join("ROOM_CREATED", strconv.Itoa(roomID), name)
}

func RoomJoined(roomID int, name string) string {
	return join("ROOM_JOINED", strconv.Itoa(roomID), name)
}

func LeftRoom() string {
	return join("LEFT_ROOM")
}

func PlayerJoined(nick string) string      { return join("PLAYER_JOINED", nick) }
func PlayerLeft(nick string) string        { return join("PLAYER_LEFT", nick) }
func PlayerReady(nick string) string       { return join("PLAYER_READY", nick) }
func PlayerReconnected(nick string) string { return join("PLAYER_RECONNECTED", nick) }
func ReadyOK() string                      { return join("READY_OK") }

func PlayerDisconnected(nick, kind, detail string) string {
	return join("PLAYER_DISCONNECTED", nick, kind, detail)
}

func RoomOwnerChanged(nick string) string { return join("ROOM_OWNER_CHANGED", nick) }
func RoomClosed(reason string) string     { return join("ROOM_CLOSED", reason) }

func GameCreated(boardSize int, reminder string) string {
	return join("GAME_CREATED", strconv.Itoa(boardSize), reminder)
}

func GameStart(boardSize int, nicks []string) string {
	tokens := append([]string{"GAME_START", strconv.Itoa(boardSize)}, nicks...)
	return join(tokens...)
}

func YourTurn() string { return join("YOUR_TURN") }

func CardReveal(index, value int, nick string) string {
	return join("CARD_REVEAL", strconv.Itoa(index), strconv.Itoa(value), nick)
}

func Match(nick string, score int) string {
	return join("MATCH", nick, strconv.Itoa(score))
}

func Mismatch(nextNick string) string {
	return join("MISMATCH", nextNick)
}

// ScoreLine is one (nick, score) pair printed in order against the player
// that earned it — never reindexed against a winner sublist. See spec.md's
// Open Question about the index-mislabeling bug the original had.
type ScoreLine struct {
	Nick  string
	Score int
}

func gameEnd(tag string, scores []ScoreLine) string {
	tokens := []string{tag}
	for _, s := range scores {
		tokens = append(tokens, s.Nick, strconv.Itoa(s.Score))
	}
	return join(tokens...)
}

func GameEnd(scores []ScoreLine) string         { return gameEnd("GAME_END", scores) }
func GameEndForfeit(scores []ScoreLine) string  { return gameEnd("GAME_END_FORFEIT", scores) }

// GameState renders `GAME_STATE <board_size> <current_nick> (<nick>
// <score>)... (<card_slot>)...` where a slot is the card's value if MATCHED,
// else 0.
func GameState(boardSize int, currentNick string, scores []ScoreLine, slots []int) string {
	tokens := []string{"GAME_STATE", strconv.Itoa(boardSize), currentNick}
	for _, s := range scores {
		tokens = append(tokens, s.Nick, strconv.Itoa(s.Score))
	}
	for _, v := range slots {
		tokens = append(tokens, strconv.Itoa(v))
	}
	return join(tokens...)
}

func Ping() string { return join("PING") }

func ServerShutdown(reason string) string { return join("SERVER_SHUTDOWN", reason) }

// RoomListEntry is one row of a ROOM_LIST response.
type RoomListEntry struct {
	ID         int
	Name       string
	Players    int
	MaxPlayers int
	State      string
	BoardSize  int
}

func RoomList(entries []RoomListEntry) string {
	tokens := []string{"ROOM_LIST", strconv.Itoa(len(entries))}
	for _, e := range entries {
		tokens = append(tokens,
			strconv.Itoa(e.ID), e.Name, strconv.Itoa(e.Players),
			strconv.Itoa(e.MaxPlayers), e.State, strconv.Itoa(e.BoardSize))
	}
	return join(tokens...)
}
