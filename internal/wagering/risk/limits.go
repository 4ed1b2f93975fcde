package risk

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/radieske/sports-wager-engine/internal/wagering/model"
)

// Tier é uma faixa de risco: aplica-se quando o líquido de 7 dias >= MinNet.
// Tiers com id maior são mais restritivos.
type Tier struct {
	ID     int
	MinNet decimal.Decimal
}

// SGMPolicy restringe mercados e linhas de gol em múltiplas do mesmo jogo.
// Desligada por padrão.
type SGMPolicy struct {
	Enforce          bool
	AllowedMarkets   map[string]bool
	AllowedGoalLines map[string]bool
}

type Limits struct {
	Tiers        []Tier
	StakeLimits  map[int]map[model.BetType]decimal.Decimal
	MaxWinPerBet decimal.Decimal
	DailyWinCap  decimal.Decimal
	SGM          SGMPolicy
}

// TierFor mapeia o líquido de 7 dias para o id do tier.
func (l Limits) TierFor(net decimal.Decimal) int {
	if len(l.Tiers) == 0 {
		return 0
	}
	tier := l.Tiers[0].ID
	for _, t := range l.Tiers {
		if net.GreaterThanOrEqual(t.MinNet) {
			tier = t.ID
		}
	}
	return tier
}

// arquivo YAML (valores como float; convertidos para decimal na carga)
type limitsFile struct {
	Tiers []struct {
		ID     int     `yaml:"id"`
		MinNet float64 `yaml:"min_net"`
	} `yaml:"tiers"`
	StakeLimits  map[int]map[string]float64 `yaml:"stake_limits"`
	MaxWinPerBet float64                    `yaml:"max_win_per_bet"`
	DailyWinCap  float64                    `yaml:"daily_win_cap"`
	SGM          struct {
		Enforce          bool     `yaml:"enforce"`
		AllowedMarkets   []string `yaml:"allowed_markets"`
		AllowedGoalLines []string `yaml:"allowed_goal_lines"`
	} `yaml:"sgm"`
}

const defaultLimitsYAML = `
tiers:
  - {id: 1, min_net: 0}
  - {id: 2, min_net: 10000}
  - {id: 3, min_net: 50000}
stake_limits:
  1: {singles: 500000, parlays: 200000, sgm: 100000}
  2: {singles: 100000, parlays: 50000, sgm: 20000}
  3: {singles: 10000, parlays: 5000, sgm: 2000}
max_win_per_bet: 10000000
daily_win_cap: 20000000
sgm:
  enforce: false
  allowed_markets: ["1", "10", "18", "29"]
  allowed_goal_lines: ["0.5", "1.5", "2.5", "3.5"]
`

// DefaultLimits retorna os limites embutidos.
func DefaultLimits() Limits {
	l, err := ParseLimits([]byte(defaultLimitsYAML))
	if err != nil {
		panic(fmt.Sprintf("risk: default limits: %v", err))
	}
	return l
}

// LoadLimits lê o arquivo de limites; path vazio usa os limites embutidos.
func LoadLimits(path string) (Limits, error) {
	if path == "" {
		return DefaultLimits(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Limits{}, fmt.Errorf("risk: read limits %s: %w", path, err)
	}
	return ParseLimits(b)
}

// ParseLimits decodifica e valida: todo tier precisa das três células de stake.
func ParseLimits(b []byte) (Limits, error) {
	var f limitsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return Limits{}, fmt.Errorf("risk: decode limits: %w", err)
	}
	if len(f.Tiers) == 0 {
		return Limits{}, fmt.Errorf("risk: no tiers configured")
	}

	l := Limits{
		StakeLimits:  map[int]map[model.BetType]decimal.Decimal{},
		MaxWinPerBet: decimal.NewFromFloat(f.MaxWinPerBet),
		DailyWinCap:  decimal.NewFromFloat(f.DailyWinCap),
		SGM: SGMPolicy{
			Enforce:          f.SGM.Enforce,
			AllowedMarkets:   set(f.SGM.AllowedMarkets),
			AllowedGoalLines: set(f.SGM.AllowedGoalLines),
		},
	}
	for _, t := range f.Tiers {
		l.Tiers = append(l.Tiers, Tier{ID: t.ID, MinNet: decimal.NewFromFloat(t.MinNet)})
	}
	sort.Slice(l.Tiers, func(i, j int) bool { return l.Tiers[i].MinNet.LessThan(l.Tiers[j].MinNet) })

	for _, t := range l.Tiers {
		cells, ok := f.StakeLimits[t.ID]
		if !ok {
			return Limits{}, fmt.Errorf("risk: tier %d has no stake limits", t.ID)
		}
		l.StakeLimits[t.ID] = map[model.BetType]decimal.Decimal{}
		for _, bt := range []model.BetType{model.BetSingle, model.BetParlay, model.BetSGM} {
			v, ok := cells[string(bt)]
			if !ok {
				return Limits{}, fmt.Errorf("risk: tier %d missing %s limit", t.ID, bt)
			}
			l.StakeLimits[t.ID][bt] = decimal.NewFromFloat(v)
		}
	}
	if !l.MaxWinPerBet.IsPositive() || !l.DailyWinCap.IsPositive() {
		return Limits{}, fmt.Errorf("risk: max_win_per_bet and daily_win_cap must be positive")
	}
	return l, nil
}

func set(vals []string) map[string]bool {
	out := make(map[string]bool, len(vals))
	for _, v := range vals {
		out[strings.TrimSpace(v)] = true
	}
	return out
}
