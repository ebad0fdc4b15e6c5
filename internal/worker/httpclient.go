package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// httpClient is the shared client used for every worker RPC, mirroring the
// retrieval pack's internal/cluster package-level httpClient: one pooled
// client with a fixed timeout rather than one per call.
var httpClient = &http.Client{Timeout: 30 * time.Second}

// ErrConnection wraps a failure to reach a worker at all (dial failure,
// connection reset, response body cut short): transport-level failures the
// engine should retry against a freshly acquired worker, as opposed to a
// worker that responded but failed the task itself (spec §4.5: "Retryable:
// network errors, worker NotReady, deadline exceeded").
var ErrConnection = errors.New("worker: connection failed")

// HTTPClient dispatches Exec calls over the Coordinator→Worker RPC from
// spec §6 (`POST /exec`), the same request/response-over-JSON shape as the
// teacher's cluster.PostJSON helper.
type HTTPClient struct{}

// Exec posts req to address+"/exec" and decodes the worker's response.
func (HTTPClient) Exec(ctx context.Context, address string, req ExecRequest) (Table, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Table{}, fmt.Errorf("worker: marshal exec request: %w", err)
	}

	url := address + "/exec"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Table{}, fmt.Errorf("worker: build exec request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return Table{}, fmt.Errorf("worker: exec request to %s: %w: %w", address, ErrConnection, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Table{}, fmt.Errorf("worker: read exec response: %w: %w", ErrConnection, err)
	}

	if resp.StatusCode != http.StatusOK {
		return Table{}, fmt.Errorf("worker: exec at %s returned status %d: %s", address, resp.StatusCode, string(data))
	}

	var out ExecResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return Table{}, fmt.Errorf("worker: decode exec response: %w", err)
	}
	if out.Error != "" {
		return Table{}, fmt.Errorf("worker: exec at %s failed (%s): %s", address, out.Error, out.Message)
	}
	out.Table.normalizeRows()
	return out.Table, nil
}
