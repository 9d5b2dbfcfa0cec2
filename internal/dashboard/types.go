package dashboard

import "time"

// Event is one parsed line from a run directory's JSONL sinks, typed by
// its "type" discriminator. Exactly one of the pointer fields is non-nil
// per Event, mirroring runlog's event shapes.
type Event struct {
	Type    string
	Entry   *EntryEvent
	Resolve *ResolveEvent
	Force   *ForceEvent
	Mismatch *MismatchEvent
	System  *SystemEvent
}

type EntryEvent struct {
	Time       string  `json:"time"`
	Profile    string  `json:"profile"`
	Coin       string  `json:"coin"`
	Direction  string  `json:"direction"`
	Gap        float64 `json:"gap"`
	Units      float64 `json:"units"`
	SpendTotal float64 `json:"spend_total"`
}

type ResolveEvent struct {
	Time     string  `json:"time"`
	Profile  string  `json:"profile"`
	Coin     string  `json:"coin"`
	OutcomeP string  `json:"outcome_p"`
	OutcomeK string  `json:"outcome_k"`
	Profit   float64 `json:"profit"`
	Won      bool    `json:"won"`
}

type ForceEvent struct {
	Time      string `json:"time"`
	Profile   string `json:"profile"`
	Coin      string `json:"coin"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

type MismatchEvent struct {
	Time    string `json:"time"`
	Profile string `json:"profile"`
	Coin    string `json:"coin"`
	Reason  string `json:"reason"`
}

type SystemEvent struct {
	Time string `json:"time"`
	Msg  string `json:"msg"`
}

// CoinRow is one row of the per-profile/coin summary table.
type CoinRow struct {
	Profile     string
	Coin        string
	State       string
	TotalTrades int
	Wins        int
	Losses      int
	TotalProfit float64
	LastGap     float64
	LastEventAt time.Time
}

// ProfileSummary holds one profile's mismatch count and latest system
// message. Analyzer does not fill its Rows field; per-coin rows are
// returned by Analyzer.Rows.
type ProfileSummary struct {
	Profile       string
	Rows          []CoinRow
	MismatchCount int
	LastSystemMsg string
}
