package tools

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/jihoon-dev/voicelink/internal/metrics"
	"github.com/jihoon-dev/voicelink/internal/protocol"
)

// ToolWebSearch is the only tool the dispatcher recognizes. Calls naming
// any other tool are ignored.
const ToolWebSearch = "web_search"

const (
	defaultSearchLanguage = "ko"
	defaultSearchCount    = 5
)

// SendFunc emits one client event on the session's control channel.
type SendFunc func(v any) error

// Dispatcher executes recognized tool calls. The load-bearing contract:
// for every recognized call it emits exactly one function_call_output
// with the originating call_id followed by one response.create, whether
// the tool succeeds, fails, or its arguments are malformed. The model
// blocks awaiting a function result; a dropped result stalls the
// conversation indefinitely.
type Dispatcher struct {
	searcher Searcher
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher backed by the given searcher.
func NewDispatcher(searcher Searcher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{searcher: searcher, logger: logger}
}

type webSearchArgs struct {
	Query    string `json:"query"`
	Language string `json:"language"`
	Count    int    `json:"count"`
}

// Dispatch handles one function-call message. Unrecognized tool names
// are ignored without emitting anything; that is not an error.
func (d *Dispatcher) Dispatch(ctx context.Context, send SendFunc, call protocol.FunctionCallArgumentsDone) {
	if call.Name != ToolWebSearch {
		d.logger.Debug("unrecognized tool call ignored",
			zap.String("name", call.Name),
			zap.String("callId", call.CallID),
		)
		metrics.ToolCallsTotal.WithLabelValues("unrecognized").Inc()
		return
	}

	metrics.ActiveToolCalls.Inc()
	defer metrics.ActiveToolCalls.Dec()
	start := time.Now()

	logger := d.logger.With(zap.String("callId", call.CallID))

	result, outcome := d.runWebSearch(ctx, logger, call.Arguments)
	metrics.ToolCallsTotal.WithLabelValues(outcome).Inc()
	metrics.ToolCallLatency.Observe(float64(time.Since(start).Milliseconds()))

	output, err := json.Marshal(result)
	if err != nil {
		// Result payloads are plain structs; this should not happen,
		// but the call must still be answered.
		output = []byte(`{"error":"internal tool failure","results":[]}`)
		logger.Error("marshal tool result", zap.Error(err))
	}

	if err := send(protocol.NewFunctionCallOutput(call.CallID, string(output))); err != nil {
		logger.Warn("send function_call_output", zap.Error(err))
	}
	if err := send(protocol.NewResponseCreate()); err != nil {
		logger.Warn("send response.create", zap.Error(err))
	}
}

func (d *Dispatcher) runWebSearch(ctx context.Context, logger *zap.Logger, rawArgs string) (SearchResult, string) {
	var args webSearchArgs
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil || args.Query == "" {
		logger.Warn("malformed tool arguments", zap.String("arguments", rawArgs))
		return SearchResult{Error: "invalid tool arguments", Results: []Result{}}, "bad_arguments"
	}
	if args.Language == "" {
		args.Language = defaultSearchLanguage
	}
	if args.Count <= 0 {
		args.Count = defaultSearchCount
	}

	result, err := d.searcher.Search(ctx, args.Query, args.Language, args.Count)
	if err != nil {
		logger.Warn("search failed", zap.Error(err))
		return SearchResult{Query: args.Query, Error: err.Error(), Results: []Result{}}, "search_error"
	}

	logger.Info("search complete",
		zap.String("query", args.Query),
		zap.Int("results", len(result.Results)),
	)
	return result, "success"
}
