package historydb

func InsertCommandEvent(event *CommandEvent) error {
	db := GetDB()

	_, err := db.Exec(
		"INSERT INTO command_events (timestamp, command, pin, value, response, latency_ms, ok) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?)",
		event.Timestamp,
		event.Command,
		event.Pin,
		event.Value,
		event.Response,
		event.LatencyMs,
		event.OK,
	)
	if err != nil {
		return err
	}
	return nil
}

func InsertPinEvent(event *PinEvent) error {
	db := GetDB()

	_, err := db.Exec(
		"INSERT INTO pin_events (timestamp, signal, value, display) "+
			"VALUES (?, ?, ?, ?)",
		event.Timestamp,
		event.Signal,
		event.Value,
		event.Display,
	)
	if err != nil {
		return err
	}
	return nil
}

func RecentCommandEvents(limit int) ([]CommandEvent, error) {
	db := GetDB()

	rows, err := db.Query(
		"SELECT timestamp, command, pin, value, response, latency_ms, ok "+
			"FROM command_events ORDER BY timestamp DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []CommandEvent
	for rows.Next() {
		var e CommandEvent
		if err := rows.Scan(&e.Timestamp, &e.Command, &e.Pin, &e.Value, &e.Response, &e.LatencyMs, &e.OK); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func RecentPinEvents(limit int) ([]PinEvent, error) {
	db := GetDB()

	rows, err := db.Query(
		"SELECT timestamp, signal, value, display "+
			"FROM pin_events ORDER BY timestamp DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []PinEvent
	for rows.Next() {
		var e PinEvent
		if err := rows.Scan(&e.Timestamp, &e.Signal, &e.Value, &e.Display); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
