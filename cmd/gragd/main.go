// cmd/gragd is the entry point for the GRAG memory daemon. It wires the
// extraction pipeline, typed storage, the optional Neo4j mirror and the
// query systems behind the engine Manager, then serves newline-delimited
// JSON requests from stdin, writing one JSON response per line to stdout.
//
// Startup sequence:
//  1. Load configuration from GRAG_ environment variables, optionally
//     overridden by a YAML file (-config).
//  2. Build the Manager; the graph mirror degrades to file-only storage
//     when Neo4j is unreachable.
//  3. Start the periodic retention sweep.
//  4. Serve requests until stdin closes or SIGINT/SIGTERM arrives.
//
// ALL logging goes to stderr. Stdout carries only response frames.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/summergraph/grag/internal/config"
	"github.com/summergraph/grag/internal/engine"
	"github.com/summergraph/grag/internal/query"
	"github.com/summergraph/grag/pkg/types"
)

// cleanupInterval is how often the retention sweep runs.
const cleanupInterval = time.Hour

func main() {
	log.SetOutput(os.Stderr)
	log.SetPrefix("gragd: ")
	log.SetFlags(log.LstdFlags)

	configPath := flag.String("config", "", "optional YAML config file; env vars apply underneath")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	mgr, err := engine.NewManager(cfg)
	if err != nil {
		log.Fatalf("failed to build memory engine: %v", err)
	}
	log.Printf("started session %s (graph available: %v, storage: %s)",
		mgr.SessionID(), mgr.GraphAvailable(), cfg.Storage.Dir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sweepLoop(ctx, mgr)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- serve(ctx, mgr, os.Stdin, os.Stdout)
	}()

	select {
	case <-ctx.Done():
		log.Printf("signal received, shutting down")
	case err := <-serveErr:
		if err != nil {
			log.Printf("serve loop ended: %v", err)
		} else {
			log.Printf("stdin closed, shutting down")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadConfigFromFile(path)
	}
	return config.LoadConfig()
}

// sweepLoop runs the storage retention sweep on a fixed interval.
func sweepLoop(ctx context.Context, mgr *engine.Manager) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted, err := mgr.Cleanup()
			if err != nil {
				log.Printf("retention sweep: %v", err)
				continue
			}
			if evicted > 0 {
				log.Printf("retention sweep evicted %d memories", evicted)
			}
		}
	}
}

// request is one stdin frame.
type request struct {
	Op       string `json:"op"` // add | query | search | task | cancel | stats | cleanup
	User     string `json:"user,omitempty"`
	AI       string `json:"ai,omitempty"`
	Question string `json:"question,omitempty"`
	TaskID   string `json:"task_id,omitempty"`

	// Search options.
	Modes      []types.SearchMode `json:"modes,omitempty"`
	Scope      types.SearchScope  `json:"scope,omitempty"`
	MaxResults int                `json:"max_results,omitempty"`
}

// response is one stdout frame.
type response struct {
	OK     bool        `json:"ok"`
	Error  string      `json:"error,omitempty"`
	Result interface{} `json:"result,omitempty"`
}

// serve processes newline-delimited JSON requests until in closes.
func serve(ctx context.Context, mgr *engine.Manager, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	encoder := json.NewEncoder(out)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			writeResponse(encoder, response{Error: fmt.Sprintf("bad request: %v", err)})
			continue
		}
		writeResponse(encoder, handle(ctx, mgr, req))
	}
	return scanner.Err()
}

func handle(ctx context.Context, mgr *engine.Manager, req request) response {
	switch req.Op {
	case "add":
		id, err := mgr.AddConversationMemory(ctx, req.User, req.AI)
		if err != nil {
			return response{Error: err.Error()}
		}
		return response{OK: true, Result: map[string]string{"task_id": id}}

	case "query":
		result, err := mgr.QueryMemoryIntelligent(ctx, req.Question)
		if err != nil {
			return response{Error: err.Error()}
		}
		return response{OK: true, Result: result}

	case "search":
		opts := query.DefaultOptions()
		if len(req.Modes) > 0 {
			opts.Modes = req.Modes
		}
		if req.Scope != "" {
			opts.Scope = req.Scope
		}
		if req.MaxResults > 0 {
			opts.MaxResults = req.MaxResults
		}
		results, err := mgr.Search(ctx, req.Question, opts)
		if err != nil {
			return response{Error: err.Error()}
		}
		return response{OK: true, Result: results}

	case "task":
		task, ok := mgr.TaskStatus(req.TaskID)
		if !ok {
			return response{Error: fmt.Sprintf("unknown task %s", req.TaskID)}
		}
		return response{OK: true, Result: task}

	case "cancel":
		if err := mgr.CancelTask(req.TaskID); err != nil {
			return response{Error: err.Error()}
		}
		return response{OK: true}

	case "stats":
		stats, err := mgr.Statistics()
		if err != nil {
			return response{Error: err.Error()}
		}
		return response{OK: true, Result: stats}

	case "cleanup":
		evicted, err := mgr.Cleanup()
		if err != nil {
			return response{Error: err.Error()}
		}
		return response{OK: true, Result: map[string]int{"evicted": evicted}}

	default:
		return response{Error: fmt.Sprintf("unknown op %q", req.Op)}
	}
}

func writeResponse(encoder *json.Encoder, resp response) {
	if err := encoder.Encode(resp); err != nil {
		log.Printf("write response: %v", err)
	}
}
