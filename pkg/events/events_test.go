package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventJSON(t *testing.T) {
	ev := Event{
		Type:     TypeUnlockFailed,
		Device:   "dev1",
		Session:  3,
		Attempts: 2,
		Phase:    "unlock",
		Time:     time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	out, err := json.Marshal(ev)
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"unlock_failed","device":"dev1","session":3,"attempts":2,"phase":"unlock","time":"2024-01-02T03:04:05Z"}`, string(out))
}

func TestMulti(t *testing.T) {
	var got []Type
	rec := ObserveFunc(func(_ context.Context, ev Event) { got = append(got, ev.Type) })
	Multi{rec, Nop, rec}.Observe(context.Background(), Event{Type: TypeBound})
	require.Equal(t, []Type{TypeBound, TypeBound}, got)
}

func TestEventString(t *testing.T) {
	require.Equal(t, "unlock_failed session=3 attempts=2 phase=unlock",
		Event{Type: TypeUnlockFailed, Session: 3, Attempts: 2, Phase: "unlock"}.String())
	require.Equal(t, "connected session=0 attempts=0", Event{Type: TypeConnected}.String())
}
