// Package jobs holds the asynq task definitions and background handlers kept
// outside the HTTP request path.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/smdhc/parcerias/internal/empenhos"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeEspelhoRefresh reloads the empenho mirror from the SOF staging
	// table and invalidates the bucket cache.
	TaskTypeEspelhoRefresh = "espelho:refresh"
	// TaskTypeIdemCleanup expires consumed idempotency keys.
	TaskTypeIdemCleanup = "idempotencia:limpeza"
)

// EspelhoRefreshPayload selects which expense elements to reload. Empty means
// both.
type EspelhoRefreshPayload struct {
	Elementos []string `json:"elementos"`
}

// ElementosPadrao returns the selected elements, defaulting to 23 and 24.
func (p EspelhoRefreshPayload) ElementosPadrao() []string {
	if len(p.Elementos) > 0 {
		return p.Elementos
	}
	return []string{empenhos.Elemento23, empenhos.Elemento24}
}

// NewEspelhoRefreshTask constructs an asynq task for the mirror refresh.
func NewEspelhoRefreshTask(payload EspelhoRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeEspelhoRefresh, data), nil
}

// NewIdemCleanupTask constructs the idempotency-key cleanup task.
func NewIdemCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskTypeIdemCleanup, nil)
}
