package ledger

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"binance-signal-bot-go/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // Import the sqlite3 driver
)

// Header 是 trades 表及其CSV导出的列顺序
var Header = []string{"id", "symbol", "side", "amount", "price", "rsi", "timestamp"}

// Ledger 是已成交订单的持久化、只追加记录
type Ledger struct {
	db *sqlx.DB
}

// Open 初始化数据库连接并创建 trades 表
func Open(dataSourceName string) (*Ledger, error) {
	if dataSourceName != ":memory:" && !strings.HasPrefix(dataSourceName, "file:") {
		if err := os.MkdirAll(filepath.Dir(dataSourceName), 0755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite 同一时间只允许一个写入者，单连接让各交易对的写入排队而不是返回 SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err = createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &Ledger{db: db}, nil
}

// createTables 如果 trades 表不存在则创建
func createTables(db *sqlx.DB) error {
	createTradesTableSQL := `
	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		amount REAL NOT NULL,
		price REAL NOT NULL,
		rsi REAL NOT NULL,
		timestamp DATETIME NOT NULL
	);`

	_, err := db.Exec(createTradesTableSQL)
	return err
}

// Append 插入一笔交易并返回其ID。单条语句，并发写入不会交错。
func (l *Ledger) Append(ctx context.Context, rec models.TradeRecord) (int64, error) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO trades (symbol, side, amount, price, rsi, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Symbol, string(rec.Side), rec.Amount, rec.Price, rec.RSI, rec.Timestamp.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade for %s: %w", rec.Symbol, err)
	}
	return res.LastInsertId()
}

// All 按ID顺序返回所有交易
func (l *Ledger) All(ctx context.Context) ([]models.TradeRecord, error) {
	return l.query(ctx, `SELECT id, symbol, side, amount, price, rsi, timestamp FROM trades ORDER BY id`)
}

// LatestBySymbol 返回每个交易对最近的一笔交易
func (l *Ledger) LatestBySymbol(ctx context.Context) (map[string]models.TradeRecord, error) {
	recs, err := l.query(ctx, `
	SELECT t.id, t.symbol, t.side, t.amount, t.price, t.rsi, t.timestamp
	FROM trades t
	JOIN (SELECT symbol, MAX(id) AS id FROM trades GROUP BY symbol) latest ON t.id = latest.id`)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.TradeRecord, len(recs))
	for _, r := range recs {
		out[r.Symbol] = r
	}
	return out, nil
}

func (l *Ledger) query(ctx context.Context, q string, args ...any) ([]models.TradeRecord, error) {
	var out []models.TradeRecord
	if err := l.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	return out, nil
}

// ExportCSV 把所有交易写入 path，覆盖之前的导出
func (l *Ledger) ExportCSV(ctx context.Context, path string) (int, error) {
	recs, err := l.All(ctx)
	if err != nil {
		return 0, err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return 0, fmt.Errorf("create export dir %s: %w", dir, err)
		}
	}
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create export file %s: %w", tmp, err)
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(Header); err != nil {
		file.Close()
		return 0, fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range recs {
		if err := writer.Write(Row(r)); err != nil {
			file.Close()
			return 0, fmt.Errorf("write csv record %d: %w", r.ID, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		file.Close()
		return 0, fmt.Errorf("flush csv: %w", err)
	}
	if err := file.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, fmt.Errorf("replace export file: %w", err)
	}
	return len(recs), nil
}

// Row 按 Header 的列顺序输出一笔交易
func Row(r models.TradeRecord) []string {
	return []string{
		strconv.FormatInt(r.ID, 10),
		r.Symbol,
		string(r.Side),
		strconv.FormatFloat(r.Amount, 'f', -1, 64),
		strconv.FormatFloat(r.Price, 'f', -1, 64),
		strconv.FormatFloat(r.RSI, 'f', -1, 64),
		r.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

// Close 关闭数据库
func (l *Ledger) Close() error {
	return l.db.Close()
}
