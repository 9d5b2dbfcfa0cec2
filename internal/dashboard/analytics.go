package dashboard

// Analyzer aggregates tailed run-directory events into per-profile,
// per-coin summaries for table rendering.
type Analyzer struct {
	rows     map[string]*CoinRow // key: profile + "/" + coin
	profiles map[string]*ProfileSummary
	order    []string // profile/coin keys in first-seen order, for stable rendering
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{
		rows:     map[string]*CoinRow{},
		profiles: map[string]*ProfileSummary{},
	}
}

func (a *Analyzer) rowKey(profile, coin string) string { return profile + "/" + coin }

func (a *Analyzer) row(profile, coin string) *CoinRow {
	key := a.rowKey(profile, coin)
	r, ok := a.rows[key]
	if !ok {
		r = &CoinRow{Profile: profile, Coin: coin, State: "idle"}
		a.rows[key] = r
		a.order = append(a.order, key)
	}
	return r
}

func (a *Analyzer) profile(name string) *ProfileSummary {
	p, ok := a.profiles[name]
	if !ok {
		p = &ProfileSummary{Profile: name}
		a.profiles[name] = p
	}
	return p
}

// Ingest folds a batch of tailed events into the running aggregates.
func (a *Analyzer) Ingest(events []Event) {
	for _, ev := range events {
		switch ev.Type {
		case "entry":
			e := ev.Entry
			r := a.row(e.Profile, e.Coin)
			r.State = "open"
			r.LastGap = e.Gap
		case "resolution":
			e := ev.Resolve
			r := a.row(e.Profile, e.Coin)
			r.State = "resolved"
			r.TotalTrades++
			r.TotalProfit += e.Profit
			if e.Won {
				r.Wins++
			} else {
				r.Losses++
			}
		case "force_resolution":
			e := ev.Force
			r := a.row(e.Profile, e.Coin)
			r.State = "force-resolved"
		case "mismatch":
			e := ev.Mismatch
			p := a.profile(e.Profile)
			p.MismatchCount++
		case "system":
			// system events are profile-less; surface the latest under every
			// known profile so the dashboard shows it regardless of layout.
			for _, p := range a.profiles {
				p.LastSystemMsg = ev.System.Msg
			}
		}
	}
}

// Rows returns every tracked CoinRow in first-seen order.
func (a *Analyzer) Rows() []CoinRow {
	out := make([]CoinRow, 0, len(a.order))
	for _, key := range a.order {
		out = append(out, *a.rows[key])
	}
	return out
}

// MismatchCount returns the total mismatch count across all profiles.
func (a *Analyzer) MismatchCount() int {
	total := 0
	for _, p := range a.profiles {
		total += p.MismatchCount
	}
	return total
}
