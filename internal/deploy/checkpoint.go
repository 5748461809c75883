package deploy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Checkpoint records how far a deployment got. Resuming from it skips the
// steps already done instead of deploying a second set of contracts.
type Checkpoint struct {
	RunID     string  `json:"run_id"`
	Request   Request `json:"request"`
	Completed int     `json:"completed"`
	Registry  string  `json:"registry,omitempty"`
	Limiter   string  `json:"limiter,omitempty"`
	Pool      string  `json:"pool,omitempty"`
	Quoter    string  `json:"quoter,omitempty"`
	// Transferred counts the ownership transfers already confirmed.
	Transferred int    `json:"transferred"`
	UpdatedAt   string `json:"updated_at"`
}

// CheckpointStore persists one deployment checkpoint to disk. The zero path
// disables it.
type CheckpointStore struct {
	path string
}

func NewCheckpointStore(path string) *CheckpointStore {
	return &CheckpointStore{path: path}
}

func (c *CheckpointStore) enabled() bool {
	return c != nil && c.path != ""
}

func (c *CheckpointStore) Load() (Checkpoint, bool, error) {
	if !c.enabled() {
		return Checkpoint{}, false, nil
	}

	stat, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Checkpoint{}, false, nil
		}
		return Checkpoint{}, false, fmt.Errorf("stat checkpoint: %w", err)
	}
	if stat.IsDir() {
		return Checkpoint{}, false, fmt.Errorf("checkpoint path is a directory")
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, false, fmt.Errorf("parse checkpoint: %w", err)
	}

	return cp, true, nil
}

func (c *CheckpointStore) Save(cp Checkpoint) error {
	if !c.enabled() {
		return nil
	}

	dir := filepath.Dir(c.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	cp.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint tmp: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}

	return nil
}

// Clear removes the checkpoint once a deployment has finished.
func (c *CheckpointStore) Clear() error {
	if !c.enabled() {
		return nil
	}
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

func (st *state) checkpoint() Checkpoint {
	d := st.deployment
	hex := func(a common.Address) string {
		if a == (common.Address{}) {
			return ""
		}
		return a.Hex()
	}
	return Checkpoint{
		RunID:       d.RunID,
		Request:     st.req,
		Completed:   st.completed,
		Registry:    hex(d.Registry),
		Limiter:     hex(d.Limiter),
		Pool:        hex(d.Pool),
		Quoter:      hex(d.Quoter),
		Transferred: st.transferred,
	}
}

func (st *state) restore(cp Checkpoint) {
	d := &st.deployment
	d.RunID = cp.RunID
	d.Registry = common.HexToAddress(cp.Registry)
	d.Limiter = common.HexToAddress(cp.Limiter)
	d.Pool = common.HexToAddress(cp.Pool)
	d.Quoter = common.HexToAddress(cp.Quoter)
	d.Metadata.Address = d.Pool
	st.completed = cp.Completed
	st.transferred = cp.Transferred
}
