package shellpane

import (
	"pkt.systems/shellpane/core"
	"pkt.systems/shellpane/schema"
)

type eventFanout struct {
	sinks []core.EventSink
}

func (f eventFanout) OnChunk(event schema.ChunkEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnChunk(event)
	}
}

func (f eventFanout) OnState(event schema.StateEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnState(event)
	}
}
