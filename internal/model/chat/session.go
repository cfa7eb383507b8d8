package chat

import (
	"time"

	"github.com/ziadismael/DevPath/interviewer/internal/model/persona"
)

// Session is the directory record for one interview room.
type Session struct {
	ID string `json:"id"`
	// Mode is the active persona: lobby until the first INIT of a call, then
	// the mode INIT selected.
	Mode      persona.Mode `json:"mode"`
	CreatedAt time.Time    `json:"createdAt"`
	// Connected is true while a room socket is attached.
	Connected bool `json:"connected"`
}
