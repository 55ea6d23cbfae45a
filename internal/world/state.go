package world

import "fmt"

// GameState is the host client's top-level state.
type GameState uint8

const (
	GameNotLoaded GameState = iota
	InGameState
	PreGameState
	WaitingState
	SelectCharacterState
	LoadingState
	LoginState
	CreateCharacterState
	DeleteCharacterState
	EscapeState
	CreditsState
	AreaLoadingState
	ChangePasswordState
)

var gameStateNames = [...]string{
	GameNotLoaded:        "GameNotLoaded",
	InGameState:          "InGameState",
	PreGameState:         "PreGameState",
	WaitingState:         "WaitingState",
	SelectCharacterState: "SelectCharacterState",
	LoadingState:         "LoadingState",
	LoginState:           "LoginState",
	CreateCharacterState: "CreateCharacterState",
	DeleteCharacterState: "DeleteCharacterState",
	EscapeState:          "EscapeState",
	CreditsState:         "CreditsState",
	AreaLoadingState:     "AreaLoadingState",
	ChangePasswordState:  "ChangePasswordState",
}

func (s GameState) String() string {
	if int(s) < len(gameStateNames) {
		return gameStateNames[s]
	}
	return fmt.Sprintf("GameState(%d)", uint8(s))
}

// ParseGameState returns the state named name.
func ParseGameState(name string) (GameState, error) {
	for i, n := range gameStateNames {
		if n == name {
			return GameState(i), nil
		}
	}
	return GameNotLoaded, fmt.Errorf("unknown game state %q", name)
}

// MarshalText encodes the state by name.
func (s GameState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *GameState) UnmarshalText(b []byte) error {
	v, err := ParseGameState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ShowsMap reports whether the terrain bitmap is generated in this state.
func (s GameState) ShowsMap() bool {
	return s == InGameState || s == EscapeState
}
