package core

import (
	"github.com/google/uuid"

	"pkt.systems/shellpane/schema"
)

func newSessionID() schema.SessionID {
	return schema.SessionID(uuid.NewString())
}
