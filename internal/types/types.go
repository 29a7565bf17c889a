package types

import "time"

type Candle struct {
	Ts                          int64
	Open, High, Low, Close, Vol float64
}

// Level is one price level of an order book side.
type Level struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBook holds bids (best first) and asks (best first).
type OrderBook struct {
	Bids []Level `json:"bids"`
	Asks []Level `json:"asks"`
}

type NewsItem struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
}

// LargeTransfer is an on-chain transfer above the whale threshold, value in ETH.
type LargeTransfer struct {
	Hash  string  `json:"hash"`
	To    string  `json:"to"`
	Value float64 `json:"value"`
}

// NewsSentiment is the coarse headline assessment fed into signal fusion.
type NewsSentiment struct {
	Credibility float64 `json:"credibility"`
	Score       float64 `json:"score"`
	Articles    int     `json:"articles"`
	Whales      int     `json:"whales"`
}

// NeutralSentiment is used when no headlines are available.
func NeutralSentiment() NewsSentiment {
	return NewsSentiment{Credibility: 0.5, Score: 0.0}
}

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
	SideFlat  Side = "FLAT"
)

func (s Side) Opposite() Side {
	switch s {
	case SideLong:
		return SideShort
	case SideShort:
		return SideLong
	}
	return SideFlat
}

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Side maps a directional action to the position side it opens.
func (a Action) Side() Side {
	switch a {
	case ActionBuy:
		return SideLong
	case ActionSell:
		return SideShort
	}
	return SideFlat
}

type Outcome string

const (
	OutcomeWin  Outcome = "WIN"
	OutcomeLoss Outcome = "LOSS"
)

// Sign returns +1 for a win and -1 for a loss.
func (o Outcome) Sign() float64 {
	if o == OutcomeWin {
		return 1
	}
	return -1
}

// Exit reasons recorded on a settled trade.
const (
	ExitTakeProfit = "TAKE_PROFIT"
	ExitStopLoss   = "STOP_LOSS"
	ExitTimeout    = "TIMEOUT"
	ExitNoPrice    = "NO_PRICE"
)

type Position struct {
	Side       Side      `json:"side"`
	Quantity   int       `json:"quantity"`
	Leverage   int       `json:"leverage"`
	EntryPrice float64   `json:"entry_price"`
	OpenedAt   time.Time `json:"opened_at"`
}

type OrderAck struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Features are the three saturated signals of one decision cycle, each in [-1, 1].
type Features struct {
	Model float64 `json:"model"`
	News  float64 `json:"news"`
	Book  float64 `json:"book"`
}

func (f Features) Vec() [3]float64 {
	return [3]float64{f.Model, f.News, f.Book}
}

type Trade struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"ts"`
	Action     Action    `json:"action"`
	EntryPrice float64   `json:"entry"`
	ExitPrice  float64   `json:"exit,omitempty"`
	Quantity   int       `json:"qty"`
	Leverage   int       `json:"lev"`
	ExitPnL    float64   `json:"exit_pnl"`
	Outcome    Outcome   `json:"outcome"`
	ExitReason string    `json:"exit_reason"`
	Confidence float64   `json:"confidence"`
	Features   Features  `json:"features"`
	OrderAck   string    `json:"res,omitempty"`
}

// EngineState is the persisted aggregate owned by the engine.
type EngineState struct {
	Balance           float64      `json:"balance"`
	Profit            float64      `json:"profit"`
	Positions         map[Side]int `json:"positions"`
	LastAction        Action       `json:"last_action,omitempty"`
	Trades            []Trade      `json:"trades"`
	ConsecutiveLosses int          `json:"consecutive_losses"`
}

const DefaultBalance = 1000.0

func DefaultState() EngineState {
	return EngineState{
		Balance:   DefaultBalance,
		Positions: map[Side]int{SideLong: 0, SideShort: 0},
		Trades:    []Trade{},
	}
}

// Clone returns a deep copy safe to hand to readers outside the engine lock.
func (s EngineState) Clone() EngineState {
	out := s
	out.Positions = make(map[Side]int, len(s.Positions))
	for k, v := range s.Positions {
		out.Positions[k] = v
	}
	out.Trades = make([]Trade, len(s.Trades))
	copy(out.Trades, s.Trades)
	return out
}

// Phase is a state of the position lifecycle.
type Phase string

const (
	PhaseIdle       Phase = "IDLE"
	PhaseEntering   Phase = "ENTERING"
	PhaseMonitoring Phase = "MONITORING"
	PhaseClosing    Phase = "CLOSING"
	PhaseSettled    Phase = "SETTLED"
)

// CycleResult summarises one decision cycle.
type CycleResult struct {
	Phase       Phase         `json:"phase"`
	Action      Action        `json:"action"`
	Price       float64       `json:"price"`
	Rel         float64       `json:"rel"`
	Direction   int           `json:"direction"`
	Confidence  float64       `json:"confidence"`
	Leverage    int           `json:"leverage"`
	Quantity    int           `json:"qty"`
	ScalpTarget float64       `json:"scalp_target"`
	Features    Features      `json:"features"`
	Sentiment   NewsSentiment `json:"sentiment"`
	Imbalance   float64       `json:"obi"`
	Trade       *Trade        `json:"trade,omitempty"`
	Reason      string        `json:"reason"`
}
