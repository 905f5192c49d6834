package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/polisai/hookgate/pkg/domain"
	"gopkg.in/yaml.v3"
)

// ledgerFile is the on-disk layout of a balance snapshot.
type ledgerFile struct {
	Accounts []TokenAccount `yaml:"accounts"`
}

// FileLedger serves balances from a YAML snapshot and reloads it whenever the
// file changes. A snapshot that fails to parse is ignored and the previous
// balances stay in effect.
type FileLedger struct {
	*Ledger

	path    string
	logger  *slog.Logger
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}

	mu       sync.Mutex
	reloads  int
	onReload func(accounts int)
}

var _ domain.BalanceOracle = (*FileLedger)(nil)

// FileLedgerOption configures a FileLedger.
type FileLedgerOption func(*FileLedger)

// WithLedgerLogger sets the logger.
func WithLedgerLogger(logger *slog.Logger) FileLedgerOption {
	return func(l *FileLedger) {
		l.logger = logger
	}
}

// WithReloadHook registers a callback invoked after every successful load.
func WithReloadHook(fn func(accounts int)) FileLedgerOption {
	return func(l *FileLedger) {
		l.onReload = fn
	}
}

// NewFileLedger loads path and starts watching it.
func NewFileLedger(path string, opts ...FileLedgerOption) (*FileLedger, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	l := &FileLedger{
		Ledger: NewLedger(),
		path:   absPath,
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	if err := l.load(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory so editors that replace the file are seen.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}
	l.watcher = watcher

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	go l.watchLoop(ctx)

	return l, nil
}

// Reloads returns how many times the snapshot has been loaded.
func (l *FileLedger) Reloads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reloads
}

// Close stops watching the file.
func (l *FileLedger) Close() error {
	l.cancel()
	err := l.watcher.Close()
	<-l.done
	return err
}

func (l *FileLedger) watchLoop(ctx context.Context) {
	defer close(l.done)

	var debounceTimer *time.Timer
	const debounceDuration = 100 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != l.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					if err := l.load(); err != nil {
						l.logger.Error("Balance snapshot reload failed", "path", l.path, "error", err)
					}
				})
			}
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error("Balance snapshot watcher error", "error", err)
		}
	}
}

func (l *FileLedger) load() error {
	// #nosec G304 -- File path is configured at startup
	data, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("read balance snapshot: %w", err)
	}

	var file ledgerFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse balance snapshot %s: %w", l.path, err)
	}

	l.Replace(file.Accounts)

	l.mu.Lock()
	l.reloads++
	hook := l.onReload
	l.mu.Unlock()

	l.logger.Info("Balance snapshot loaded", "path", l.path, "accounts", len(file.Accounts))
	if hook != nil {
		hook(len(file.Accounts))
	}
	return nil
}
