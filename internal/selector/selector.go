// Package selector picks the row and column categories of a fresh board.
package selector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/rocketscienceinc/crictactoe/internal/entity"
)

// Category - the axis a usage counter belongs to.
type Category string

const (
	CategoryTeam    Category = "team"
	CategoryCountry Category = "country"
)

const labelsPerAxis = entity.BoardSize

var ErrNoCandidates = errors.New("dataset cannot fill a board for this mode")

// UsageStore - persisted per-label selection counters.
type UsageStore interface {
	Counts(ctx context.Context, category Category) (map[string]int, error)
	Increment(ctx context.Context, category Category, labels []string) error
}

type squads interface {
	Teams() []string
	CountriesOf(team string) []string
	SharedPlayers(teamA, teamB string) []string
}

// Selection - labels for the rows and columns of a board.
type Selection struct {
	Mode entity.GameMode
	Rows []string
	Cols []string
}

type Selector struct {
	logger *slog.Logger
	squads squads
	usage  UsageStore

	mu  sync.Mutex
	rnd *rand.Rand
}

func New(logger *slog.Logger, squads squads, usage UsageStore, rnd *rand.Rand) *Selector {
	return &Selector{
		logger: logger,
		squads: squads,
		usage:  usage,
		rnd:    rnd,
	}
}

// Select - labels for mode where every row and column pair has at least one valid answer.
// Labels used less often are more likely to be picked; their counters are bumped afterwards.
func (that *Selector) Select(ctx context.Context, mode entity.GameMode) (*Selection, error) {
	teamCounts := that.counts(ctx, CategoryTeam)

	var (
		selection *Selection
		err       error
	)

	switch mode {
	case entity.ModeCountryTeam:
		countryCounts := that.counts(ctx, CategoryCountry)
		selection, err = that.selectCountryTeam(teamCounts, countryCounts)
	case entity.ModeTeamTeam:
		selection, err = that.selectTeamTeam(teamCounts)
	default:
		return nil, fmt.Errorf("%w: %q", entity.ErrUnknownGameMode, mode)
	}

	if err != nil {
		return nil, err
	}

	that.recordUsage(ctx, selection)

	return selection, nil
}

func (that *Selector) counts(ctx context.Context, category Category) map[string]int {
	counts, err := that.usage.Counts(ctx, category)
	if err != nil {
		that.logger.Warn("failed to read usage counters, selecting without them", "category", category, "error", err)
		return map[string]int{}
	}

	return counts
}

func (that *Selector) recordUsage(ctx context.Context, selection *Selection) {
	var err error

	switch selection.Mode {
	case entity.ModeCountryTeam:
		if err = that.usage.Increment(ctx, CategoryCountry, selection.Rows); err == nil {
			err = that.usage.Increment(ctx, CategoryTeam, selection.Cols)
		}
	case entity.ModeTeamTeam:
		err = that.usage.Increment(ctx, CategoryTeam, append(append([]string(nil), selection.Rows...), selection.Cols...))
	}

	if err != nil {
		that.logger.Warn("failed to update usage counters", "mode", selection.Mode, "error", err)
	}
}

func (that *Selector) selectCountryTeam(teamCounts, countryCounts map[string]int) (*Selection, error) {
	teams := that.squads.Teams()

	countriesOf := make([]map[string]bool, len(teams))
	for i, team := range teams {
		countriesOf[i] = make(map[string]bool)
		for _, country := range that.squads.CountriesOf(team) {
			countriesOf[i][country] = true
		}
	}

	type candidate struct {
		teams  []int
		common []string
	}

	var candidates []candidate
	for _, trio := range combinations(len(teams), labelsPerAxis, nil) {
		var common []string
		for _, country := range that.squads.CountriesOf(teams[trio[0]]) {
			if countriesOf[trio[1]][country] && countriesOf[trio[2]][country] {
				common = append(common, country)
			}
		}

		if len(common) >= labelsPerAxis {
			candidates = append(candidates, candidate{teams: trio, common: common})
		}
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no three teams share %d countries", ErrNoCandidates, labelsPerAxis)
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	picked := candidates[that.weightedPick(len(candidates), func(i int) float64 {
		score := 0.1 * float64(len(candidates[i].common))
		for _, idx := range candidates[i].teams {
			score += weight(teamCounts[teams[idx]])
		}
		return score
	})]

	cols := make([]string, 0, labelsPerAxis)
	for _, idx := range picked.teams {
		cols = append(cols, teams[idx])
	}
	that.rnd.Shuffle(len(cols), func(i, j int) { cols[i], cols[j] = cols[j], cols[i] })

	return &Selection{
		Mode: entity.ModeCountryTeam,
		Rows: that.weightedSelect(picked.common, labelsPerAxis, countryCounts),
		Cols: cols,
	}, nil
}

func (that *Selector) selectTeamTeam(teamCounts map[string]int) (*Selection, error) {
	teams := that.squads.Teams()
	if len(teams) < 2*labelsPerAxis {
		return nil, fmt.Errorf("%w: need %d teams, have %d", ErrNoCandidates, 2*labelsPerAxis, len(teams))
	}

	shares := make([][]bool, len(teams))
	for i := range teams {
		shares[i] = make([]bool, len(teams))
		for j := range teams {
			if i != j {
				shares[i][j] = len(that.squads.SharedPlayers(teams[i], teams[j])) > 0
			}
		}
	}

	type candidate struct {
		rows, cols []int
		weight     float64
	}

	var (
		perfect       []candidate
		fallback      candidate
		fallbackScore = -1 << 31
	)

	for _, rows := range combinations(len(teams), labelsPerAxis, nil) {
		for _, cols := range combinations(len(teams), labelsPerAxis, rows) {
			edges, usage, w := 0, 0, 0.0
			for _, r := range rows {
				for _, c := range cols {
					if shares[r][c] {
						edges++
					}
				}
			}

			for _, idx := range append(append([]int(nil), rows...), cols...) {
				usage += teamCounts[teams[idx]]
				w += weight(teamCounts[teams[idx]])
			}

			if edges == labelsPerAxis*labelsPerAxis {
				perfect = append(perfect, candidate{rows: rows, cols: cols, weight: w})
				continue
			}

			if score := edges*100 - usage; score > fallbackScore {
				fallbackScore = score
				fallback = candidate{rows: rows, cols: cols}
			}
		}
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	picked := fallback
	if len(perfect) > 0 {
		picked = perfect[that.weightedPick(len(perfect), func(i int) float64 { return perfect[i].weight })]
	} else {
		that.logger.Warn("no team grid where every pair shares a player, using the closest one", "score", fallbackScore)
	}

	return &Selection{
		Mode: entity.ModeTeamTeam,
		Rows: labelsOf(teams, picked.rows),
		Cols: labelsOf(teams, picked.cols),
	}, nil
}

// weightedSelect - n distinct labels, each draw weighted by 1/(uses+1).
func (that *Selector) weightedSelect(labels []string, n int, counts map[string]int) []string {
	pool := append([]string(nil), labels...)
	picked := make([]string, 0, n)

	for len(picked) < n && len(pool) > 0 {
		idx := that.weightedPick(len(pool), func(i int) float64 { return weight(counts[pool[i]]) })
		picked = append(picked, pool[idx])
		pool = append(pool[:idx], pool[idx+1:]...)
	}

	return picked
}

// weightedPick - index in [0,n) drawn proportionally to score. Caller holds mu.
func (that *Selector) weightedPick(n int, score func(i int) float64) int {
	total := 0.0
	scores := make([]float64, n)
	for i := range n {
		scores[i] = score(i)
		total += scores[i]
	}

	if total <= 0 {
		return that.rnd.Intn(n)
	}

	r := that.rnd.Float64() * total
	for i, s := range scores {
		if r < s {
			return i
		}
		r -= s
	}

	return n - 1
}

func weight(uses int) float64 {
	return 1 / float64(uses+1)
}

func labelsOf(labels []string, idx []int) []string {
	out := make([]string, 0, len(idx))
	for _, i := range idx {
		out = append(out, labels[i])
	}

	return out
}

// combinations - every k-subset of [0,n) in lexicographic order, skipping indexes in exclude.
func combinations(n, k int, exclude []int) [][]int {
	skip := make(map[int]bool, len(exclude))
	for _, i := range exclude {
		skip[i] = true
	}

	var pool []int
	for i := range n {
		if !skip[i] {
			pool = append(pool, i)
		}
	}

	var (
		out     [][]int
		current = make([]int, 0, k)
		walk    func(start int)
	)

	walk = func(start int) {
		if len(current) == k {
			out = append(out, append([]int(nil), current...))
			return
		}

		for i := start; i < len(pool); i++ {
			current = append(current, pool[i])
			walk(i + 1)
			current = current[:len(current)-1]
		}
	}
	walk(0)

	return out
}
