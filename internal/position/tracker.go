// Package position 记录哪些交易对持有未平仓头寸。
package position

import (
	"sync"
	"time"

	"binance-signal-bot-go/internal/metrics"
	"binance-signal-bot-go/internal/models"
	"binance-signal-bot-go/internal/persistence"

	"go.uber.org/zap"
)

// Tracker 每个交易对最多记录一个持仓。
//
// 所有交易对循环共享同一个 Tracker，修改由互斥锁串行化。
// 配置了仓库时，每次修改都会排队一份快照，由后台循环写入磁盘。
type Tracker struct {
	mu        sync.RWMutex
	positions map[string]models.Position

	repo            persistence.PositionRepository
	persistenceChan chan *models.PositionBook
	stopChan        chan struct{}
	doneChan        chan struct{}
	started         bool
	logger          *zap.Logger
}

// NewTracker 创建空的持仓跟踪器。repo 可以为 nil，此时持仓只保存在内存中，重启后丢失。
func NewTracker(repo persistence.PositionRepository, logger *zap.Logger) *Tracker {
	return &Tracker{
		positions:       make(map[string]models.Position),
		repo:            repo,
		persistenceChan: make(chan *models.PositionBook, 1),
		logger:          logger,
	}
}

// Restore 加载最近一次保存的持仓快照
func (t *Tracker) Restore() (int, error) {
	if t.repo == nil {
		return 0, nil
	}
	book, err := t.repo.LoadBook()
	if err != nil {
		return 0, err
	}
	if book == nil {
		return 0, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for symbol, p := range book.Positions {
		t.positions[symbol] = p
	}
	metrics.PositionsOpen.Set(float64(len(t.positions)))
	return len(book.Positions), nil
}

// Start 启动持久化循环；没有仓库时为空操作。Stop 之后可以再次 Start。
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.repo == nil || t.started {
		return
	}
	t.started = true
	t.stopChan = make(chan struct{})
	t.doneChan = make(chan struct{})
	go t.persistenceLoop(t.stopChan, t.doneChan)
}

// Stop 写出最后一份快照并停止持久化循环
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return
	}
	t.started = false
	close(t.stopChan)
	done := t.doneChan
	t.mu.Unlock()
	<-done
}

// IsOpen 判断交易对是否有持仓
func (t *Tracker) IsOpen(symbol string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.positions[symbol]
	return ok
}

// Get 返回交易对的持仓
func (t *Tracker) Get(symbol string) (models.Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.positions[symbol]
	return p, ok
}

// Open 记录持仓，覆盖之前的记录
func (t *Tracker) Open(symbol string, p models.Position) {
	p.Symbol = symbol
	t.mu.Lock()
	defer t.mu.Unlock()
	t.positions[symbol] = p
	t.changed()
}

// Close 移除持仓，交易对不存在时不做任何操作
func (t *Tracker) Close(symbol string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.positions[symbol]; !ok {
		return
	}
	delete(t.positions, symbol)
	t.changed()
}

// Snapshot 返回所有持仓的副本
func (t *Tracker) Snapshot() map[string]models.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.copyPositions()
}

// Count 返回持仓数量
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.positions)
}

// changed 必须在持有 mu 时调用。
// 队列只保留最新的一份快照，磁盘变慢时交易路径也不会阻塞。
func (t *Tracker) changed() {
	metrics.PositionsOpen.Set(float64(len(t.positions)))
	if !t.started {
		return
	}
	book := &models.PositionBook{
		Version:        models.PositionBookVersion,
		Positions:      t.copyPositions(),
		LastUpdateTime: time.Now(),
	}
	select {
	case t.persistenceChan <- book:
	default:
		// 丢弃尚未写出的旧快照；mu 保证这里是唯一的发送方
		select {
		case <-t.persistenceChan:
		default:
		}
		t.persistenceChan <- book
	}
}

func (t *Tracker) copyPositions() map[string]models.Position {
	out := make(map[string]models.Position, len(t.positions))
	for k, v := range t.positions {
		out[k] = v
	}
	return out
}

// persistenceLoop 持续写出快照，直到 stop 关闭后再排空队列
func (t *Tracker) persistenceLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case book := <-t.persistenceChan:
			t.save(book)
		case <-stop:
			select {
			case book := <-t.persistenceChan:
				t.save(book)
			default:
			}
			return
		}
	}
}

func (t *Tracker) save(book *models.PositionBook) {
	if err := t.repo.SaveBook(book); err != nil {
		t.logger.Sugar().Errorf("CRITICAL: Failed to save position book: %v", err)
	}
}
