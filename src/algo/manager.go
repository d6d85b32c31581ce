package algo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"trade-gateway/src/exchange"
	"trade-gateway/src/interfaces"
	"trade-gateway/src/logger"
	"trade-gateway/src/marketdata"
	"trade-gateway/src/models"
	"trade-gateway/src/utils"
)

// -----------------------------------------------------------------------------
// Manager owns the strategy registry, every spawned instance and the
// sequenced lifecycle event store backing offline replay. Instances run on
// their own goroutines; sessions observe them through registered sinks.
// -----------------------------------------------------------------------------

type Manager struct {
	Config *models.MConfig
	Logger *logger.Logger

	book *exchange.GlobalOrderBook
	md   *marketdata.Manager

	adapters   map[string]IAlgoAdapter
	adaptersMu sync.RWMutex

	mu      sync.Mutex
	algos   map[int64]*models.MAlgo
	byToken map[string]*models.MAlgo
	runs    map[int64]*run
	nextID  atomic.Int64

	store *utils.ReplayLog[*models.MAlgoEvent]

	listeners   map[uint64]interfaces.IAlgoEventSink
	listenersMu sync.RWMutex

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

type run struct {
	exec   *Execution
	cancel context.CancelFunc
}

// -----------------------------------------------------------------------------

func NewManager(cfg *models.MConfig, book *exchange.GlobalOrderBook,
	md *marketdata.Manager, storeCapacity int, log *logger.Logger) *Manager {

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		Config:     cfg,
		Logger:     log,
		book:       book,
		md:         md,
		adapters:   make(map[string]IAlgoAdapter),
		algos:      make(map[int64]*models.MAlgo),
		byToken:    make(map[string]*models.MAlgo),
		runs:       make(map[int64]*run),
		store:      utils.NewReplayLog[*models.MAlgoEvent](storeCapacity),
		listeners:  make(map[uint64]interfaces.IAlgoEventSink),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// -----------------------------------------------------------------------------

// Store exposes the replay window for memory-guard registration.
func (m *Manager) Store() *utils.ReplayLog[*models.MAlgoEvent] {
	return m.store
}

// -----------------------------------------------------------------------------

// Seq returns the sequence of the newest stored event.
func (m *Manager) Seq() int64 {
	return m.store.LastSeq()
}

// -----------------------------------------------------------------------------

func (m *Manager) AddAdapter(adapter IAlgoAdapter) error {
	m.adaptersMu.Lock()
	defer m.adaptersMu.Unlock()

	name := adapter.GetName()
	if _, exists := m.adapters[name]; exists {
		return fmt.Errorf("adapter %s already exists", name)
	}
	m.adapters[name] = adapter
	m.Logger.Info("Added algo adapter: %s", name)
	return nil
}

// -----------------------------------------------------------------------------

// GetAdapter retrieves a strategy by name.
func (m *Manager) GetAdapter(name string) IAlgoAdapter {
	m.adaptersMu.RLock()
	defer m.adaptersMu.RUnlock()
	return m.adapters[name]
}

// -----------------------------------------------------------------------------

// Adapters returns all strategies sorted by name; the catalog iterates this.
func (m *Manager) Adapters() []IAlgoAdapter {
	m.adaptersMu.RLock()
	names := make([]string, 0, len(m.adapters))
	for name := range m.adapters {
		names = append(names, name)
	}
	m.adaptersMu.RUnlock()

	sort.Strings(names)
	out := make([]IAlgoAdapter, 0, len(names))
	for _, name := range names {
		out = append(out, m.GetAdapter(name))
	}
	return out
}

// -----------------------------------------------------------------------------

// RegisterListener subscribes a session to live algo events and test output.
func (m *Manager) RegisterListener(id uint64, sink interfaces.IAlgoEventSink) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners[id] = sink
}

// UnregisterListener drops a session subscription.
func (m *Manager) UnregisterListener(id uint64) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	delete(m.listeners, id)
}

// -----------------------------------------------------------------------------

// FindToken returns the instance spawned with the token, running or not.
// Tokens are never reused within one process lifetime.
func (m *Manager) FindToken(token string) *models.MAlgo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byToken[token]
}

// -----------------------------------------------------------------------------

// Get returns the instance with the given id.
func (m *Manager) Get(id int64) *models.MAlgo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.algos[id]
}

// -----------------------------------------------------------------------------

// Spawn starts one strategy instance. Nil params mean a scripted test run:
// output routes back through SendTestMsg and an unknown name is a silent
// no-op, matching the dispatcher contract.
func (m *Manager) Spawn(name, token string, user *models.MUser,
	paramsJSON string, params ParamMap) (*models.MAlgo, error) {

	adapter := m.GetAdapter(name)
	if adapter == nil {
		if params == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("Unknown algo name: %s", name)
	}

	if params != nil {
		if err := adapter.Validate(params); err != nil {
			return nil, err
		}
	}

	algo := &models.MAlgo{
		ID:         m.nextID.Add(1),
		Token:      token,
		Name:       name,
		User:       user,
		Status:     models.AlgoRunning,
		ParamsJSON: paramsJSON,
		Tm:         time.Now().Unix(),
	}

	exec := &Execution{
		Algo:   algo,
		Logger: m.Logger,
		book:   m.book,
		md:     m.md,
		params: params,
		test:   params == nil,
	}
	if exec.test {
		exec.testMsg = func(msg string, stopped bool) {
			m.sendTestMsg(token, msg, stopped)
		}
	}

	runCtx, cancel := context.WithCancel(m.ctx)

	m.mu.Lock()
	m.algos[algo.ID] = algo
	if token != "" {
		m.byToken[token] = algo
	}
	m.runs[algo.ID] = &run{exec: exec, cancel: cancel}
	m.mu.Unlock()

	m.publish(algo, models.AlgoRunning, paramsJSON)
	m.Logger.Info("Spawned algo %d (%s, token %q) for user %d",
		algo.ID, name, token, user.ID)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		adapter.Run(runCtx, exec)
		cancel()
		m.finish(algo)
	}()

	return algo, nil
}

// -----------------------------------------------------------------------------

// finish marks an instance stopped after its Run returns, once.
func (m *Manager) finish(algo *models.MAlgo) {
	m.mu.Lock()
	if algo.Status == models.AlgoStopped {
		m.mu.Unlock()
		return
	}
	algo.Status = models.AlgoStopped
	delete(m.runs, algo.ID)
	m.mu.Unlock()

	m.publish(algo, models.AlgoStopped, "")
}

// -----------------------------------------------------------------------------

// Stop cancels one instance by id. Unknown or already stopped ids no-op.
func (m *Manager) Stop(id int64) {
	m.mu.Lock()
	r := m.runs[id]
	m.mu.Unlock()
	if r != nil {
		r.cancel()
	}
}

// StopToken cancels one instance by its spawn token.
func (m *Manager) StopToken(token string) {
	if algo := m.FindToken(token); algo != nil {
		m.Stop(algo.ID)
	}
}

// -----------------------------------------------------------------------------

// Modify swaps the parameter set of a running instance by id.
func (m *Manager) Modify(id int64, paramsJSON string, params ParamMap) {
	m.mu.Lock()
	r := m.runs[id]
	algo := m.algos[id]
	m.mu.Unlock()
	if r == nil || algo == nil {
		return
	}

	r.exec.setParams(params)
	algo.ParamsJSON = paramsJSON
	m.publish(algo, algo.Status, paramsJSON)
}

// ModifyToken swaps the parameter set of a running instance by token.
func (m *Manager) ModifyToken(token, paramsJSON string, params ParamMap) {
	if algo := m.FindToken(token); algo != nil {
		m.Modify(algo.ID, paramsJSON, params)
	}
}

// -----------------------------------------------------------------------------

// publish stores one lifecycle event and fans it out to sessions.
func (m *Manager) publish(algo *models.MAlgo, status, body string) {
	ev := &models.MAlgoEvent{
		AlgoID: algo.ID,
		Tm:     time.Now().Unix(),
		Token:  algo.Token,
		Name:   algo.Name,
		Status: status,
		Body:   body,
		UserID: algo.UserID(),
	}
	m.store.Append(ev)

	m.listenersMu.RLock()
	for _, sink := range m.listeners {
		sink.SendAlgoEvent(ev, false)
	}
	m.listenersMu.RUnlock()
}

// -----------------------------------------------------------------------------

// sendTestMsg fans one test-run line to every session; each session filters
// by its recorded test tokens.
func (m *Manager) sendTestMsg(token, msg string, stopped bool) {
	m.listenersMu.RLock()
	for _, sink := range m.listeners {
		sink.SendTestMsg(token, msg, stopped)
	}
	m.listenersMu.RUnlock()
}

// -----------------------------------------------------------------------------

// LoadStore replays stored events with seq greater than after into the sink,
// marked offline.
func (m *Manager) LoadStore(after int64, sink interfaces.IAlgoEventSink) {
	m.store.Replay(after, func(ev *models.MAlgoEvent) {
		sink.SendAlgoEvent(ev, true)
	})
}

// -----------------------------------------------------------------------------

// RunningCount returns the number of live instances.
func (m *Manager) RunningCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

// -----------------------------------------------------------------------------

// StopRunning cancels every live instance without retiring the manager.
// Returns how many instances were signalled.
func (m *Manager) StopRunning() int {
	m.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(m.runs))
	for _, r := range m.runs {
		cancels = append(cancels, r.cancel)
	}
	m.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	return len(cancels)
}

// -----------------------------------------------------------------------------

// StopAll cancels every running instance and waits for their goroutines.
// Terminal: the manager cannot spawn again afterwards.
func (m *Manager) StopAll() {
	m.cancelFunc()
	m.wg.Wait()
}

// -----------------------------------------------------------------------------
// Strategy source files. The three file verbs and the catalog listing operate
// on the configured algo directory; names never traverse outside it.
// -----------------------------------------------------------------------------

var errBadFileName = fmt.Errorf("invalid file name")

func (m *Manager) filePath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", errBadFileName
	}
	return filepath.Join(m.Config.AlgoDir, name), nil
}

// -----------------------------------------------------------------------------

// ListFiles names the strategy sources for the catalog, skipping hidden and
// underscore-prefixed entries.
func (m *Manager) ListFiles() []string {
	entries, err := os.ReadDir(m.Config.AlgoDir)
	if err != nil {
		return nil
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// -----------------------------------------------------------------------------

// ReadFile returns one strategy source.
func (m *Manager) ReadFile(name string) (string, error) {
	path, err := m.filePath(name)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// -----------------------------------------------------------------------------

// SaveFile overwrites one strategy source.
func (m *Manager) SaveFile(name, text string) error {
	path, err := m.filePath(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(m.Config.AlgoDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(text), 0644)
}

// -----------------------------------------------------------------------------

// DeleteFile removes one strategy source.
func (m *Manager) DeleteFile(name string) error {
	path, err := m.filePath(name)
	if err != nil {
		return err
	}
	return os.Remove(path)
}
