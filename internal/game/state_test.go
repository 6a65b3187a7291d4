package game

import (
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLobbyStateEmptyRecord(t *testing.T) {
	_, err := parseLobbyState(uuid.New(), map[string]string{})
	assert.ErrorIs(t, err, ErrLobbyNotFound)
}

func TestParseLobbyStateRoundTrip(t *testing.T) {
	p1 := uuid.New()
	st := &LobbyState{UUID: uuid.New(), Player1: p1, Online1: true, Status: StatusWaiting}

	fields := map[string]string{}
	for k, v := range st.toFields() {
		fields[k] = v.(string)
	}
	parsed, err := parseLobbyState(st.UUID, fields)
	require.NoError(t, err)
	assert.Equal(t, p1, parsed.Player1)
	assert.Equal(t, uuid.Nil, parsed.Player2)
	assert.True(t, parsed.Online1)
	assert.False(t, parsed.Online2)
	assert.Equal(t, StatusWaiting, parsed.Status)
	assert.Nil(t, parsed.Answer1)
	assert.Zero(t, parsed.EndAt)
}

func TestParseLobbyStateRejectsCorruptFields(t *testing.T) {
	id := uuid.New()
	base := func() map[string]string {
		return map[string]string{
			"player1": uuid.New().String(),
			"status":  strconv.Itoa(int(StatusStarted)),
		}
	}

	cases := map[string]func(m map[string]string){
		"bad player1": func(m map[string]string) { m["player1"] = "not-a-uuid" },
		"bad status":  func(m map[string]string) { m["status"] = "banana" },
		"bad answer":  func(m map[string]string) { m["answer1"] = "{not json" },
		"bad endAt":   func(m map[string]string) { m["endAt"] = "later" },
	}
	for name, corrupt := range cases {
		t.Run(name, func(t *testing.T) {
			m := base()
			corrupt(m)
			_, err := parseLobbyState(id, m)
			assert.Error(t, err)
		})
	}

	t.Run("missing status", func(t *testing.T) {
		m := base()
		delete(m, "status")
		_, err := parseLobbyState(id, m)
		assert.Error(t, err)
	})
}

func TestLobbyStateSlots(t *testing.T) {
	p1, p2 := uuid.New(), uuid.New()
	st := &LobbyState{Player1: p1, Player2: p2}

	assert.Equal(t, 1, st.Slot(p1))
	assert.Equal(t, 2, st.Slot(p2))
	assert.Equal(t, 0, st.Slot(uuid.New()))
	assert.True(t, st.HasPlayer(p1))
	assert.False(t, st.HasPlayer(uuid.New()))
	assert.Len(t, st.Players(), 2)

	solo := &LobbyState{Player1: p1}
	assert.Len(t, solo.Players(), 1)
	assert.False(t, solo.HasPlayer(uuid.Nil))
}
