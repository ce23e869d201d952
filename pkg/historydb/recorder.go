package historydb

import (
	"github.com/hilworks/arduino_bridge/pkg/bridge"
	"github.com/hilworks/arduino_bridge/pkg/broadcast"
	"github.com/sirupsen/logrus"
)

// StartRecorder subscribes to the broadcaster and persists resolved commands
// and pin transitions. Returns a stop function.
func StartRecorder(bus *broadcast.Broadcaster) func() {
	_, sub := bus.Subscribe(func() any { return nil })

	go func() {
		for event := range sub.C {
			if err := record(event); err != nil {
				logrus.Warnf("Failed to record %s event: %v", event.Type, err)
			}
		}
	}()
	return sub.Close
}

func record(event broadcast.Event) error {
	switch event.Type {
	case broadcast.TypeCommandResponse:
		data, ok := event.Data.(bridge.CommandResponseData)
		if !ok {
			return nil
		}
		return InsertCommandEvent(&CommandEvent{
			Timestamp: event.Timestamp,
			Command:   data.Command,
			Pin:       data.Pin,
			Response:  data.Response,
			LatencyMs: data.LatencyMs,
			OK:        data.OK,
		})
	case broadcast.TypePinUpdate:
		data, ok := event.Data.(bridge.PinUpdateData)
		if !ok {
			return nil
		}
		return InsertPinEvent(&PinEvent{
			Timestamp: event.Timestamp,
			Signal:    data.Signal,
			Value:     data.PinState.Raw,
			Display:   data.PinState.Display,
		})
	}
	return nil
}
