package transport

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/colonycore/colony/internal/logging"
)

const (
	// inboxDir is the directory name within a session directory that holds
	// per-participant inboxes.
	inboxDir = "inbox"

	// indexFile is the append-only JSONL file within each inbox directory.
	indexFile = "index.jsonl"

	// defaultPollInterval is the default interval between Subscribe polls.
	defaultPollInterval = 500 * time.Millisecond
)

// maxPollErrors is the number of consecutive read errors before a subscriber
// poller logs at error level. Individual failures are expected; sustained
// failures indicate a real problem.
const maxPollErrors = 5

// FileTransport persists inboxes as JSONL files under a session directory.
// Envelopes are appended one JSON object per line; appends are serialized
// via a mutex. Cross-process readers observe writes because each poll rereads
// the index files.
type FileTransport struct {
	dir          string
	pollInterval time.Duration
	log          *logging.Logger

	mu sync.Mutex
	// cursors tracks, per Receive/Subscribe reader, how many direct and
	// broadcast envelopes have already been delivered.
	cursors map[string]*cursor
}

type cursor struct {
	direct    int
	broadcast int
}

// FileOption configures a FileTransport.
type FileOption func(*FileTransport)

// WithPollInterval sets the interval between Subscribe polls.
func WithPollInterval(d time.Duration) FileOption {
	return func(t *FileTransport) {
		if d > 0 {
			t.pollInterval = d
		}
	}
}

// WithFileLogger sets the transport's logger.
func WithFileLogger(log *logging.Logger) FileOption {
	return func(t *FileTransport) { t.log = log }
}

// NewFileTransport creates a FileTransport rooted at the given session
// directory. The directory structure is created lazily on first write.
func NewFileTransport(dir string, opts ...FileOption) *FileTransport {
	t := &FileTransport{
		dir:          dir,
		pollInterval: defaultPollInterval,
		log:          logging.NopLogger(),
		cursors:      make(map[string]*cursor),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send appends the envelope to its destination inbox.
func (t *FileTransport) Send(env Envelope) error {
	env = stamp(env)
	if err := env.Validate(); err != nil {
		return err
	}
	return t.append(env.To, env)
}

// Broadcast appends the envelope to the shared broadcast inbox, from which
// every reader receives it once.
func (t *FileTransport) Broadcast(env Envelope) error {
	env.To = BroadcastRecipient
	env = stamp(env)
	if err := env.Validate(); err != nil {
		return err
	}
	return t.append(BroadcastRecipient, env)
}

// Receive drains the envelopes that arrived for the participant since the
// last call, merging its direct inbox with broadcasts in timestamp order.
func (t *FileTransport) Receive(id string) ([]Envelope, error) {
	if id == "" {
		return nil, fmt.Errorf("transport: participant id is required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.drainLocked(id)
}

// Subscribe polls the participant's inboxes and invokes fn for each envelope
// that arrives after the subscription is established. Pending envelopes from
// before the subscription are skipped unless the participant never called
// Receive, in which case the initial snapshot marks them as seen.
func (t *FileTransport) Subscribe(id string, fn func(Envelope)) (cancel func(), err error) {
	if id == "" {
		return nil, fmt.Errorf("transport: participant id is required")
	}

	// Drain synchronously so anything sent after Subscribe returns is
	// guaranteed to be seen by the poller.
	t.mu.Lock()
	if _, err := t.drainLocked(id); err != nil {
		t.mu.Unlock()
		return nil, err
	}
	t.mu.Unlock()

	var stopped atomic.Bool
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		consecutiveErrors := 0
		for !stopped.Load() {
			time.Sleep(t.pollInterval)
			if stopped.Load() {
				return
			}

			t.mu.Lock()
			pending, err := t.drainLocked(id)
			t.mu.Unlock()
			if err != nil {
				consecutiveErrors++
				if consecutiveErrors >= maxPollErrors {
					t.log.Error("inbox poll failing",
						"participant", id, "error", err.Error())
					consecutiveErrors = 0
				}
				continue
			}
			consecutiveErrors = 0

			for _, env := range pending {
				fn(env)
			}
		}
	}()

	return func() {
		stopped.Store(true)
		wg.Wait()
	}, nil
}

// Close is a no-op for the file transport; the session directory outlives it.
func (t *FileTransport) Close() error { return nil }

// drainLocked returns the undelivered envelopes for a reader and advances its
// cursor. Callers hold t.mu.
func (t *FileTransport) drainLocked(id string) ([]Envelope, error) {
	cur, ok := t.cursors[id]
	if !ok {
		cur = &cursor{}
		t.cursors[id] = cur
	}

	direct, err := t.readIndex(id)
	if err != nil {
		return nil, err
	}
	broadcast, err := t.readIndex(BroadcastRecipient)
	if err != nil {
		return nil, err
	}

	if cur.direct > len(direct) {
		cur.direct = len(direct)
	}
	if cur.broadcast > len(broadcast) {
		cur.broadcast = len(broadcast)
	}

	newDirect := direct[cur.direct:]
	newBroadcast := broadcast[cur.broadcast:]
	cur.direct = len(direct)
	cur.broadcast = len(broadcast)

	if len(newDirect)+len(newBroadcast) == 0 {
		return nil, nil
	}

	merged := make([]Envelope, 0, len(newDirect)+len(newBroadcast))
	merged = append(merged, newDirect...)
	merged = append(merged, newBroadcast...)
	sortEnvelopes(merged)
	return merged, nil
}

// append serializes the envelope and appends it to the recipient's index.
func (t *FileTransport) append(recipient string, env Envelope) error {
	dir := t.inboxPath(recipient)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("transport: create inbox directory: %w", err)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("transport: marshal envelope: %w", err)
	}
	data = append(data, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.OpenFile(filepath.Join(dir, indexFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("transport: open index for append: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("transport: append to index: %w", err)
	}
	return f.Close()
}

func (t *FileTransport) inboxPath(recipient string) string {
	return filepath.Join(t.dir, inboxDir, recipient)
}

// readIndex reads all envelopes from a recipient's index file. A missing
// file yields nil, not an error. Malformed lines are skipped.
func (t *FileTransport) readIndex(recipient string) ([]Envelope, error) {
	path := filepath.Join(t.inboxPath(recipient), indexFile)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("transport: open index: %w", err)
	}
	defer func() { _ = f.Close() }()

	var envelopes []Envelope
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			continue
		}
		envelopes = append(envelopes, env)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("transport: scan index: %w", err)
	}
	return envelopes, nil
}
