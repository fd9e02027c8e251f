package metrics

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.vocdoni.io/zkballot/log"
	"go.vocdoni.io/zkballot/phase"
	"go.vocdoni.io/zkballot/state"
	"go.vocdoni.io/zkballot/types"
)

const namespace = "ballot"

// Collector keeps the ballot gauges up to date. It is registered as a state
// event listener, and refreshes the gauges from the state on every Commit.
type Collector struct {
	registry *prometheus.Registry
	state    *state.State
	mempool  func() int

	height        prometheus.Gauge
	mempoolSize   prometheus.Gauge
	candidates    prometheus.Gauge
	registrations prometheus.Gauge
	votes         prometheus.Gauge
	tally         *prometheus.GaugeVec
	events        *prometheus.CounterVec
	windowSet     prometheus.Gauge
	diskUsage     prometheus.GaugeFunc

	mu sync.Mutex
}

// NewCollector creates the collectors, registers them in a new registry and
// adds the Collector as an event listener of st. mempool may be nil.
func NewCollector(st *state.State, mempool func() int) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		state:    st,
		mempool:  mempool,
		height: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "height",
			Help:      "Height of the ledger (last block)",
		}),
		mempoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mempool",
			Help:      "Number of txs in the mempool",
		}),
		candidates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "candidates",
			Help:      "Number of candidates",
		}),
		registrations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registrations",
			Help:      "Number of registered voter commitments",
		}),
		votes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "votes",
			Help:      "Number of votes cast",
		}),
		tally: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "candidate_votes",
			Help:      "Votes per candidate",
		}, []string{"candidate"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "State events observed since start",
		}, []string{"type"}),
		windowSet: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_set",
			Help:      "1 if the phase window is set",
		}),
		diskUsage: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_disk_bytes",
			Help:      "Bytes used by the node database",
		}, func() float64 { return float64(st.DB().DiskUsage()) }),
	}
	Register(c.registry,
		c.height, c.mempoolSize, c.candidates, c.registrations,
		c.votes, c.tally, c.events, c.windowSet, c.diskUsage,
	)
	st.AddEventListener(c)
	return c
}

// Registry returns the registry holding the ballot collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Register the provided prometheus collectors, ignoring any error returned (simply logs a Warn)
func Register(reg prometheus.Registerer, cs ...prometheus.Collector) {
	for _, col := range cs {
		if err := reg.Register(col); err != nil {
			log.Warnf("cannot register metrics: (%s) (%+v)", err, col)
		}
	}
}

func (c *Collector) OnCandidate(*state.Candidate) {
	c.events.WithLabelValues("candidate").Inc()
}

func (c *Collector) OnWindow(phase.Window) {
	c.events.WithLabelValues("window").Inc()
}

func (c *Collector) OnRegister(common.Address) {
	c.events.WithLabelValues("register").Inc()
}

func (c *Collector) OnVote(*types.BigInt, uint32, uint64) {
	c.events.WithLabelValues("vote").Inc()
}

// Commit refreshes every gauge from the committed state.
func (c *Collector) Commit(height uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height.Set(float64(height))
	if c.mempool != nil {
		c.mempoolSize.Set(float64(c.mempool()))
	}
	return c.refresh()
}

// Refresh updates the state gauges without a block, used at start up.
func (c *Collector) Refresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refresh()
}

func (c *Collector) refresh() error {
	candidates, err := c.state.Candidates()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	c.candidates.Set(float64(len(candidates)))
	for _, cand := range candidates {
		c.tally.WithLabelValues(fmt.Sprintf("%d", cand.ID)).Set(float64(cand.VoteCount))
	}
	registrations, err := c.state.CountRegistrations()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	c.registrations.Set(float64(registrations))
	votes, err := c.state.TotalVotes()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	c.votes.Set(float64(votes))
	if _, ok, err := c.state.Window(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	} else if ok {
		c.windowSet.Set(1)
	} else {
		c.windowSet.Set(0)
	}
	return nil
}
