package tradelog

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	mu  sync.Mutex
	dir string
	now = time.Now
)

type Entry struct {
	Time, ID, Symbol, Action, Outcome, ExitReason string
	Qty, Leverage                                 int
	Entry, Exit, PnL                              float64
	Confidence                                    float64
	OrderAck                                      string         `json:",omitempty"`
	Extra                                         map[string]any `json:"extra,omitempty"`
}

type DecisionEntry struct {
	Time, Symbol, Action, Phase, Reason string
	Confidence, Price, Rel, ScalpTarget float64
	Leverage, Qty                       int
	Features                            map[string]float64
	Extra                               map[string]any `json:",omitempty"`
}

// SetDir overrides the log root; empty restores the TRADER_LOG_DIR / "logs" default.
func SetDir(d string) {
	mu.Lock()
	defer mu.Unlock()
	dir = d
}

func logDir() string {
	if dir != "" {
		return dir
	}
	if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

func Dir() string {
	mu.Lock()
	defer mu.Unlock()
	return logDir()
}

func dailyFilepath(t time.Time) string {
	return filepath.Join(logDir(), t.UTC().Format("2006-01-02")+".txt")
}

func decisionsFilepath(t time.Time) string {
	return filepath.Join(logDir(), "decisions", t.UTC().Format("2006-01-02")+".txt")
}

// DailyPath is the trade log file for the UTC day containing t.
func DailyPath(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()
	return dailyFilepath(t)
}

func Append(e Entry) error {
	mu.Lock()
	defer mu.Unlock()
	t := now().UTC()
	e.Time = t.Format(time.RFC3339)
	return appendLine(dailyFilepath(t), e)
}

func AppendDecision(e DecisionEntry) error {
	mu.Lock()
	defer mu.Unlock()
	t := now().UTC()
	e.Time = t.Format(time.RFC3339)
	return appendLine(decisionsFilepath(t), e)
}

func appendLine(p string, v any) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// ReadDay returns the trade entries logged for the UTC day containing t.
func ReadDay(t time.Time) ([]Entry, error) {
	mu.Lock()
	p := dailyFilepath(t)
	mu.Unlock()

	b, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []Entry
	dec := json.NewDecoder(bytes.NewReader(b))
	for dec.More() {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			return out, err
		}
		out = append(out, e)
	}
	return out, nil
}

func CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	root := Dir()
	cutoff := now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(p) != ".txt" {
			return nil
		}
		info, er := d.Info()
		if er != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		gz := p + ".gz"
		if _, e2 := os.Stat(gz); e2 == nil {
			_ = os.Remove(p)
			return nil
		}
		if e3 := gzipFile(p, gz); e3 == nil {
			_ = os.Remove(p)
		}
		return nil
	})
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		_ = gw.Close()
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := gw.Close(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
