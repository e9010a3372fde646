// Package dataset holds the static IPL squad list used to build boards and check answers.
package dataset

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/rocketscienceinc/crictactoe/internal/apperror"
	"github.com/rocketscienceinc/crictactoe/internal/entity"
)

// MaxAnswerLength - answers are cut to this many characters before matching.
const MaxAnswerLength = 60

//go:embed players.yaml
var playersYAML []byte

var ErrEmptyDataset = errors.New("dataset has no teams")

type country struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

type team struct {
	Code    string              `yaml:"code"`
	Name    string              `yaml:"name"`
	Players map[string][]string `yaml:"players"`
}

type document struct {
	Countries []country `yaml:"countries"`
	Teams     []team    `yaml:"teams"`
}

// Dataset - read-only lookup of players by team and nationality.
type Dataset struct {
	teamOrder    []string
	countryOrder []string
	teamNames    map[string]string
	countryNames map[string]string

	// team -> country -> players
	squads map[string]map[string][]string
	// team -> normalized player -> canonical player
	rosters map[string]map[string]string
	// normalized player -> canonical player
	everyone map[string]string
}

var (
	defaultOnce    sync.Once
	defaultDataset *Dataset
	defaultErr     error
)

// Default - the embedded dataset, parsed once.
func Default() (*Dataset, error) {
	defaultOnce.Do(func() {
		defaultDataset, defaultErr = Parse(playersYAML)
	})

	return defaultDataset, defaultErr
}

// Parse - builds a Dataset from its YAML form.
func Parse(data []byte) (*Dataset, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}

	if len(doc.Teams) == 0 {
		return nil, ErrEmptyDataset
	}

	ds := &Dataset{
		teamNames:    make(map[string]string, len(doc.Teams)),
		countryNames: make(map[string]string, len(doc.Countries)),
		squads:       make(map[string]map[string][]string, len(doc.Teams)),
		rosters:      make(map[string]map[string]string, len(doc.Teams)),
		everyone:     make(map[string]string),
	}

	for _, c := range doc.Countries {
		ds.countryOrder = append(ds.countryOrder, c.Code)
		ds.countryNames[c.Code] = c.Name
	}

	for _, t := range doc.Teams {
		ds.teamOrder = append(ds.teamOrder, t.Code)
		ds.teamNames[t.Code] = t.Name
		ds.squads[t.Code] = make(map[string][]string, len(t.Players))
		ds.rosters[t.Code] = make(map[string]string)

		for code, players := range t.Players {
			if _, ok := ds.countryNames[code]; !ok {
				return nil, fmt.Errorf("team %s lists unknown country %q", t.Code, code)
			}

			ds.squads[t.Code][code] = players
			for _, player := range players {
				key := normalize(player)
				ds.rosters[t.Code][key] = player
				ds.everyone[key] = player
			}
		}
	}

	return ds, nil
}

// Teams - team codes in dataset order.
func (that *Dataset) Teams() []string {
	return append([]string(nil), that.teamOrder...)
}

// Countries - country codes in dataset order.
func (that *Dataset) Countries() []string {
	return append([]string(nil), that.countryOrder...)
}

func (that *Dataset) TeamName(code string) string {
	if name, ok := that.teamNames[code]; ok {
		return name
	}

	return code
}

func (that *Dataset) CountryName(code string) string {
	if name, ok := that.countryNames[code]; ok {
		return name
	}

	return code
}

// CountriesOf - country codes with at least one player in team, in dataset order.
func (that *Dataset) CountriesOf(team string) []string {
	squad := that.squads[team]

	var countries []string
	for _, code := range that.countryOrder {
		if len(squad[code]) > 0 {
			countries = append(countries, code)
		}
	}

	return countries
}

// PlayersOf - players of country that played for team.
func (that *Dataset) PlayersOf(team, country string) []string {
	return append([]string(nil), that.squads[team][country]...)
}

// SharedPlayers - canonical names of players that played for both teams, sorted.
func (that *Dataset) SharedPlayers(teamA, teamB string) []string {
	rosterA, rosterB := that.rosters[teamA], that.rosters[teamB]

	var shared []string
	for key, name := range rosterA {
		if _, ok := rosterB[key]; ok {
			shared = append(shared, name)
		}
	}
	sort.Strings(shared)

	return shared
}

// Answers - every accepted answer for the cell at the intersection of row and col.
func (that *Dataset) Answers(mode entity.GameMode, row, col string) []string {
	switch mode {
	case entity.ModeCountryTeam:
		return that.PlayersOf(col, row)
	case entity.ModeTeamTeam:
		return that.SharedPlayers(row, col)
	default:
		return nil
	}
}

// Check - whether answer names a player satisfying both constraints of the cell.
// The returned name is the dataset spelling of the matched player.
func (that *Dataset) Check(mode entity.GameMode, cell entity.BoardCell, answer string) (string, bool, error) {
	key := normalize(answer)
	if key == "" {
		return "", false, apperror.New(apperror.KindInvalidInput, "check answer", "answer is empty")
	}

	switch mode {
	case entity.ModeCountryTeam:
		for _, player := range that.squads[cell.Team][cell.Country] {
			if normalize(player) == key {
				return player, true, nil
			}
		}
	case entity.ModeTeamTeam:
		name, inRow := that.rosters[cell.Country][key]
		_, inCol := that.rosters[cell.Team][key]
		if inRow && inCol {
			return name, true, nil
		}
	default:
		return "", false, fmt.Errorf("%w: %q", entity.ErrUnknownGameMode, mode)
	}

	return SanitizeAnswer(answer), false, nil
}

// Suggest - up to limit known players whose name contains query, sorted.
func (that *Dataset) Suggest(query string, limit int) []string {
	key := normalize(query)
	if key == "" || limit <= 0 {
		return nil
	}

	var matches []string
	for normalized, name := range that.everyone {
		if strings.Contains(normalized, key) {
			matches = append(matches, name)
		}
	}
	sort.Strings(matches)

	if len(matches) > limit {
		matches = matches[:limit]
	}

	return matches
}

// SanitizeAnswer - trims, drops control characters and caps the length of a raw answer.
func SanitizeAnswer(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	runes := []rune(strings.TrimSpace(cleaned))
	if len(runes) > MaxAnswerLength {
		runes = runes[:MaxAnswerLength]
	}

	return strings.TrimSpace(string(runes))
}

func normalize(raw string) string {
	return strings.ToLower(strings.Join(strings.Fields(SanitizeAnswer(raw)), " "))
}
