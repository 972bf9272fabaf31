package source

import (
	"context"
	"fmt"
	"strings"

	"BTCSentinel/internal/model"
)

const yieldsDefaultURL = "https://yields.llama.fi"

type poolsResponse struct {
	Status string `json:"status"`
	Data   []struct {
		Chain   string   `json:"chain"`
		Project string   `json:"project"`
		Symbol  string   `json:"symbol"`
		APY     *float64 `json:"apy"`
		APYBase *float64 `json:"apyBase"`
		TVLUsd  float64  `json:"tvlUsd"`
	} `json:"data"`
}

// poolMatch selects the pool a lending rate is read from.
type poolMatch struct {
	project string
	chain   string
	symbols []string
}

func (m poolMatch) ok(project, chain, symbol string) bool {
	if !strings.EqualFold(project, m.project) || !strings.EqualFold(chain, m.chain) {
		return false
	}
	for _, s := range m.symbols {
		if strings.EqualFold(symbol, s) {
			return true
		}
	}
	return false
}

// PoolRate reads one lending pool's base APY from DeFiLlama yields.
type PoolRate struct {
	name    string
	match   poolMatch
	baseURL string
	deps    Deps
}

// NewAaveRate reads the Aave v3 USDT supply rate on Ethereum.
func NewAaveRate(baseURL string, deps Deps) *PoolRate {
	return newPoolRate(NameAaveRate, poolMatch{project: "aave-v3", chain: "Ethereum", symbols: []string{"USDT"}}, baseURL, deps)
}

// NewMakerRate reads the MakerDAO DAI savings rate on Ethereum.
func NewMakerRate(baseURL string, deps Deps) *PoolRate {
	return newPoolRate(NameMakerRate, poolMatch{project: "makerdao", chain: "Ethereum", symbols: []string{"DAI", "SDAI"}}, baseURL, deps)
}

func newPoolRate(name string, m poolMatch, baseURL string, deps Deps) *PoolRate {
	if baseURL == "" {
		baseURL = yieldsDefaultURL
	}
	return &PoolRate{name: name, match: m, baseURL: baseURL, deps: deps}
}

func (p *PoolRate) Name() string { return p.name }

// FetchRate returns the base APY as a fraction. When several pools match, the
// deepest one wins.
func (p *PoolRate) FetchRate(ctx context.Context) (float64, error) {
	var resp poolsResponse
	if err := getJSON(ctx, p.deps, p.baseURL+"/pools", &resp); err != nil {
		return 0, wrap(p.name, err)
	}
	best, tvl := -1.0, -1.0
	for _, d := range resp.Data {
		if !p.match.ok(d.Project, d.Chain, d.Symbol) {
			continue
		}
		apy := d.APYBase
		if apy == nil {
			apy = d.APY
		}
		if apy == nil || d.TVLUsd <= tvl {
			continue
		}
		best, tvl = *apy/100, d.TVLUsd
	}
	if best < 0 {
		return 0, model.NewSourceError(p.name, model.ErrDataIntegrity, fmt.Errorf("no %s pool on %s", p.match.project, p.match.chain))
	}
	return best, nil
}
