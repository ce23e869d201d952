package historydb

type CommandEvent struct {
	Timestamp int64   `db:"timestamp" json:"timestamp"`
	Command   string  `db:"command" json:"command"`
	Pin       string  `db:"pin" json:"pin,omitempty"`
	Value     string  `db:"value" json:"value,omitempty"`
	Response  string  `db:"response" json:"response,omitempty"`
	LatencyMs float64 `db:"latency_ms" json:"latency_ms"`
	OK        bool    `db:"ok" json:"ok"`
}

type PinEvent struct {
	Timestamp int64  `db:"timestamp" json:"timestamp"`
	Signal    string `db:"signal" json:"signal"`
	Value     string `db:"value" json:"value"`
	Display   string `db:"display" json:"display,omitempty"`
}
