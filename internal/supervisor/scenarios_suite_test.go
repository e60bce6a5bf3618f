// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/groupsio/membridge/internal/gateway"
	"github.com/groupsio/membridge/internal/ingest"
	"github.com/groupsio/membridge/internal/lock"
	"github.com/groupsio/membridge/internal/reasoncode"
	"github.com/groupsio/membridge/internal/rpcmux"
	"github.com/groupsio/membridge/internal/worker"
)

// TestScenarios wires every literal end-to-end scenario in spec.md §8
// into the ginkgo/gomega suite below; this is the one entry point `go
// test` discovers for the package's Describe blocks.
func TestScenarios(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("scenarios rely on POSIX shell/process semantics")
	}
	RegisterFailHandler(Fail)
	RunSpecs(t, "Bridge Supervisor End-to-End Scenarios")
}

// retrieveWorkerScript implements just enough of the worker's NDJSON
// JSON-RPC protocol (health, retrieve) to exercise a real Supervisor +
// Gateway round trip without the out-of-scope graph/vector worker
// itself.
const retrieveWorkerScript = `
import json
import sys

for line in sys.stdin:
    line = line.strip()
    if not line:
        continue
    req = json.loads(line)
    method = req.get("method")
    if method == "health":
        result = {"status": "ok"}
    elif method == "retrieve":
        result = {
            "results": [{"summary_text": "Used Redis, TTL=15m", "text": "Used Redis, TTL=15m", "score": 0.9, "tokens": 4}],
            "contract_version": 1,
            "graph_context": "",
        }
    else:
        result = {}
    sys.stdout.write(json.dumps({"jsonrpc": "2.0", "id": req.get("id"), "result": result}) + "\n")
    sys.stdout.flush()
`

// pythonSpawner resolves a real python3 interpreter, used only by
// scenario 1, the one scenario that needs an actual NDJSON-speaking
// child rather than a plain shell script.
type pythonSpawner struct {
	script string
}

func (p pythonSpawner) Resolve(ctx context.Context) (worker.Config, error) {
	path, err := exec.LookPath("python3")
	if err != nil {
		return worker.Config{}, err
	}
	return worker.Config{
		BinaryPath: path,
		Args:       []string{"-c", p.script},
		WorkDir:    os.TempDir(),
		Env:        os.Environ(),
	}, nil
}

// healthHandshaker calls the worker's "health" operation, mirroring
// internal/app.Handshaker without importing internal/app (which itself
// imports this package).
type healthHandshaker struct{}

func (healthHandshaker) Handshake(ctx context.Context, mux *rpcmux.Mux) error {
	raw, err := mux.SendRequest(ctx, "health", nil, 10*time.Second)
	if err != nil {
		return err
	}
	var reply struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return err
	}
	if reply.Status != "ok" {
		return errors.New("worker reported unhealthy status")
	}
	return nil
}

var _ = Describe("Scenario 1: Cold start + retrieve", func() {
	It("acquires the lock, spawns, handshakes, and shapes a retrieve reply", func() {
		if _, err := exec.LookPath("python3"); err != nil {
			Skip("python3 not available in this environment")
		}

		sup := New(Config{
			WorkspaceRoot: GinkgoT().TempDir(),
			Namespace:     "membridge",
			Spawner:       pythonSpawner{script: retrieveWorkerScript},
			Handshaker:    healthHandshaker{},
			IdleTimeout:   time.Hour,
		})
		defer sup.Close()

		gw := gateway.New(gateway.Config{
			MaxConcurrentRequests: 2,
			RateLimitPerMinute:    30,
			MaxQueueSize:          5,
			RequestTimeout:        StartupDeadline,
			Bridge:                sup,
		})

		resp, err := gw.Retrieve(context.Background(), gateway.RetrievalRequest{Query: "caching discussion"})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Results).To(HaveLen(1))
		Expect(resp.Results[0].SummaryText).To(Equal("Used Redis, TTL=15m"))

		report, err := sup.Diagnostics(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(report.State).To(Equal(StateRunning))
	})
})

var _ = Describe("Scenario 2: Second host races", func() {
	It("rejects a second supervisor over the same workspace with LOCK_HELD", func() {
		workspace := GinkgoT().TempDir()

		hostA := New(Config{
			WorkspaceRoot: workspace,
			Namespace:     "membridge",
			Spawner:       scriptSpawner{script: "sleep 5"},
			Handshaker:    noopHandshaker{},
			IdleTimeout:   time.Hour,
		})
		defer hostA.Close()
		Expect(hostA.EnsureRunning(context.Background())).To(Succeed())

		hostB := New(Config{
			WorkspaceRoot: workspace,
			Namespace:     "membridge",
			Spawner:       scriptSpawner{script: "sleep 5"},
			Handshaker:    noopHandshaker{},
			IdleTimeout:   time.Hour,
		})
		defer hostB.Close()

		err := hostB.EnsureRunning(context.Background())
		Expect(err).To(HaveOccurred())

		var daemonErr *DaemonUnavailableError
		Expect(errors.As(err, &daemonErr)).To(BeTrue())
		Expect(daemonErr.Reason).To(Equal(reasoncode.LockHeld))

		reportB, diagErr := hostB.Diagnostics(context.Background())
		Expect(diagErr).NotTo(HaveOccurred())
		Expect(reportB.State).NotTo(Equal(StateRunning))
	})
})

var _ = Describe("Scenario 3: Stale lock recovery", func() {
	It("removes a lock directory owned by a dead PID and proceeds", func() {
		workspace := GinkgoT().TempDir()

		lockDir := filepath.Join(workspace, ".membridge", "daemon.lock")
		Expect(os.MkdirAll(lockDir, 0o755)).To(Succeed())

		owner, err := json.Marshal(lock.OwnerMetadata{
			CreatedAt:        time.Now().Add(-time.Hour).UnixMilli(),
			ExtensionHostPid: 99999,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(os.WriteFile(filepath.Join(lockDir, "owner.json"), owner, 0o644)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(workspace, ".membridge", "daemon.pid"), []byte("99999"), 0o644)).To(Succeed())

		sup := New(Config{
			WorkspaceRoot: workspace,
			Namespace:     "membridge",
			Spawner:       scriptSpawner{script: "sleep 5"},
			Handshaker:    noopHandshaker{},
			IdleTimeout:   time.Hour,
		})
		defer sup.Close()

		Expect(sup.EnsureRunning(context.Background())).To(Succeed())

		report, err := sup.Diagnostics(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(report.State).To(Equal(StateRunning))
		Expect(report.Lock.Held).To(BeTrue())
	})
})

var _ = Describe("Scenario 4: Idle shutdown deferral", func() {
	It("defers the idle stop while a request is pending, then stops once quiet", func() {
		workspace := GinkgoT().TempDir()

		sup := New(Config{
			WorkspaceRoot: workspace,
			Namespace:     "membridge",
			Spawner:       scriptSpawner{script: "sleep 5"},
			Handshaker:    noopHandshaker{},
			IdleTimeout:   200 * time.Millisecond,
		})
		defer sup.Close()

		Expect(sup.EnsureRunning(context.Background())).To(Succeed())

		var pendingDone atomic.Bool
		go func() {
			// The fake worker never answers, so this call stays pending
			// until its own timeout, simulating an in-flight request.
			_, _ = sup.Call(context.Background(), "retrieve", nil, 600*time.Millisecond)
			pendingDone.Store(true)
		}()

		// While the request is in flight, an idle period elapses; the
		// supervisor must still be running because PendingCount() > 0.
		time.Sleep(400 * time.Millisecond)
		report, err := sup.Diagnostics(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(report.State).To(Equal(StateRunning))

		Eventually(pendingDone.Load, 2*time.Second, 10*time.Millisecond).Should(BeTrue())

		Eventually(func() DaemonState {
			report, err := sup.Diagnostics(context.Background())
			if err != nil {
				return ""
			}
			return report.State
		}, 3*time.Second, 50*time.Millisecond).Should(Equal(StateStopped))
	})
})

var _ = Describe("Scenario 5: Transient staging retry", func() {
	It("retries a transient staging failure twice then succeeds", func() {
		bridge := &scenarioFakeBridge{failTimes: 2, failErr: errors.New("database is locked")}
		queue := &scenarioFakeQueue{operationID: "op-scenario-5"}
		coordinator := ingest.New(ingest.Config{Bridge: bridge, Queue: queue})

		result, err := coordinator.Ingest(context.Background(), ingest.Payload{Content: "decided to use Postgres"})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Staged).To(BeTrue())
		Expect(result.Success).To(BeTrue())
		Expect(result.OperationID).To(Equal("op-scenario-5"))
		Expect(atomic.LoadInt32(&bridge.calls)).To(BeEquivalentTo(3))
	})
})

var _ = Describe("Scenario 6: Forced-kill escalation", func() {
	It("suspends daemon mode after three consecutive forced kills", func() {
		workspace := GinkgoT().TempDir()

		sup := New(Config{
			WorkspaceRoot: workspace,
			Namespace:     "membridge",
			Spawner:       scriptSpawner{script: "trap '' TERM; sleep 30"},
			Handshaker:    noopHandshaker{},
			IdleTimeout:   time.Hour,
		})
		defer sup.Close()

		for i := 0; i < ConsecutiveForcedKillsThreshold; i++ {
			Expect(sup.EnsureRunning(context.Background())).To(Succeed())
			Expect(sup.Stop(context.Background())).To(Succeed())
		}

		err := sup.EnsureRunning(context.Background())
		Expect(err).To(HaveOccurred())

		var daemonErr *DaemonUnavailableError
		Expect(errors.As(err, &daemonErr)).To(BeTrue())

		report, diagErr := sup.Diagnostics(context.Background())
		Expect(diagErr).NotTo(HaveOccurred())
		Expect(report.State).To(Equal(StateSuspended))
	})
})

type scenarioFakeBridge struct {
	calls     int32
	failTimes int
	failErr   error
}

func (b *scenarioFakeBridge) Call(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	n := atomic.AddInt32(&b.calls, 1)
	if int(n) <= b.failTimes {
		return nil, b.failErr
	}
	return json.Marshal(map[string]interface{}{"staged": true})
}

type scenarioFakeQueue struct {
	operationID string
}

func (q *scenarioFakeQueue) Enqueue(ctx context.Context, payload ingest.Payload) (string, error) {
	return q.operationID, nil
}
