// Package registry содержит статический каталог отслеживаемых DAO
// и правила определения уровня (tier) по базовым баллам за голос.
package registry

// DAO описывает отслеживаемое пространство голосования.
type DAO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Chain      string `json:"chain"`
	Tier       int    `json:"tier"`
	BasePoints int64  `json:"base_points"`
	IsActive   bool   `json:"is_active"`
}

// Tier описывает уровень DAO и соответствующие базовые баллы.
type Tier struct {
	Tier       int    `json:"tier"`
	Name       string `json:"name"`
	BasePoints int64  `json:"base_points"`
}

// defaultBasePoints начисляется за голос в неизвестном DAO.
const defaultBasePoints = 20

// tier4IDs — пространства категории «Infrastructure & Tools».
// Базовые баллы совпадают с третьим уровнем, различие только по членству.
var tier4IDs = map[string]struct{}{
	"ens.eth":        {},
	"safe.eth":       {},
	"gitcoindao.eth": {},
	"thegraph.eth":   {},
}

var trackedDAOs = []DAO{
	{ID: "aave.eth", Name: "Aave", Chain: "ethereum", BasePoints: 100, IsActive: true},
	{ID: "uniswapgovernance.eth", Name: "Uniswap", Chain: "ethereum", BasePoints: 100, IsActive: true},
	{ID: "curve-dao.eth", Name: "Curve", Chain: "ethereum", BasePoints: 100, IsActive: true},
	{ID: "compoundgrants.eth", Name: "Compound Grants", Chain: "ethereum", BasePoints: 100, IsActive: true},
	{ID: "arbitrumfoundation.eth", Name: "Arbitrum", Chain: "arbitrum", BasePoints: 80, IsActive: true},
	{ID: "optimismgov.eth", Name: "Optimism", Chain: "optimism", BasePoints: 80, IsActive: true},
	{ID: "stgdao.eth", Name: "Stargate", Chain: "ethereum", BasePoints: 80, IsActive: true},
	{ID: "polygonfoundation.eth", Name: "Polygon", Chain: "polygon", BasePoints: 80, IsActive: true},
	{ID: "lido-snapshot.eth", Name: "Lido", Chain: "ethereum", BasePoints: 60, IsActive: true},
	{ID: "balancer.eth", Name: "Balancer", Chain: "ethereum", BasePoints: 60, IsActive: true},
	{ID: "sushigov.eth", Name: "Sushi", Chain: "ethereum", BasePoints: 60, IsActive: true},
	{ID: "hop.eth", Name: "Hop", Chain: "ethereum", BasePoints: 60, IsActive: true},
	{ID: "1inch.eth", Name: "1inch", Chain: "ethereum", BasePoints: 60, IsActive: true},
	{ID: "ens.eth", Name: "ENS", Chain: "ethereum", BasePoints: 60, IsActive: true},
	{ID: "safe.eth", Name: "Safe", Chain: "ethereum", BasePoints: 60, IsActive: true},
	{ID: "gitcoindao.eth", Name: "Gitcoin", Chain: "ethereum", BasePoints: 60, IsActive: true},
	{ID: "thegraph.eth", Name: "The Graph", Chain: "ethereum", BasePoints: 60, IsActive: true},
	{ID: "paraswap-dao.eth", Name: "ParaSwap", Chain: "ethereum", BasePoints: 40, IsActive: true},
	{ID: "olympusdao.eth", Name: "Olympus", Chain: "ethereum", BasePoints: 40, IsActive: true},
	{ID: "apecoin.eth", Name: "ApeCoin", Chain: "ethereum", BasePoints: 40, IsActive: true},
}

// Registry предоставляет доступ к каталогу DAO. Каталог неизменяем после создания.
type Registry struct {
	byID  map[string]DAO
	order []DAO
}

// New создаёт реестр со встроенным каталогом отслеживаемых DAO.
func New() *Registry {
	r := &Registry{byID: make(map[string]DAO, len(trackedDAOs))}
	for _, d := range trackedDAOs {
		d.Tier = tierFor(d.ID, d.BasePoints)
		r.byID[d.ID] = d
		r.order = append(r.order, d)
	}
	return r
}

// Lookup возвращает описание DAO по идентификатору.
// Для неизвестного идентификатора возвращается синтетическое описание
// нижнего уровня (tier 5, 20 баллов); ошибка не возникает никогда.
func (r *Registry) Lookup(id string) DAO {
	if d, ok := r.byID[id]; ok {
		return d
	}
	return DAO{
		ID:         id,
		Name:       id,
		Chain:      "unknown",
		Tier:       5,
		BasePoints: defaultBasePoints,
		IsActive:   false,
	}
}

// TierOf возвращает уровень, его название и базовые баллы для DAO.
func (r *Registry) TierOf(id string) Tier {
	d := r.Lookup(id)
	return Tier{
		Tier:       d.Tier,
		Name:       tierName(d.Tier, d.BasePoints),
		BasePoints: d.BasePoints,
	}
}

// ListAll возвращает все отслеживаемые DAO в порядке каталога.
func (r *Registry) ListAll() []DAO {
	res := make([]DAO, len(r.order))
	copy(res, r.order)
	return res
}

func tierFor(id string, basePoints int64) int {
	switch {
	case basePoints >= 100:
		return 1
	case basePoints >= 80:
		return 2
	case basePoints >= 60:
		if _, ok := tier4IDs[id]; ok {
			return 4
		}
		return 3
	default:
		return 5
	}
}

func tierName(tier int, basePoints int64) string {
	switch tier {
	case 1:
		return "Major DeFi"
	case 2:
		return "L2 & Infrastructure"
	case 3:
		return "Established DeFi"
	case 4:
		return "Infrastructure & Tools"
	default:
		// Пятый уровень делится на известные сообщества и всё остальное.
		if basePoints >= 40 {
			return "Community"
		}
		return "Emerging"
	}
}
