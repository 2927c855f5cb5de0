package svc

import (
	"context"
	"encoding/json"

	"microrpc/procstats"
	"microrpc/rpcerr"
)

func (r *Runtime) installBuiltinHandlers() {
	r.handlers["heartbeat"] = HandlerFunc(func(ctx context.Context, _ []byte) ([]byte, error) {
		return []byte("PONG"), nil
	})

	r.handlers["stop"] = HandlerFunc(func(ctx context.Context, _ []byte) ([]byte, error) {
		return []byte("STOPPED"), &rpcerr.StopServiceError{}
	})

	r.handlers["description"] = HandlerFunc(func(ctx context.Context, _ []byte) ([]byte, error) {
		return json.Marshal(r.describe())
	})

	r.handlers["healthcheck"] = HandlerFunc(func(ctx context.Context, _ []byte) ([]byte, error) {
		doc := r.describe()
		doc["start_datetime"] = formatStartTime(r.StartTime)
		doc["process"] = procstats.Current()
		return json.Marshal(doc)
	})

	r.handlers["default"] = HandlerFunc(func(ctx context.Context, _ []byte) ([]byte, error) {
		return []byte("Function not available for service: " + r.Name), nil
	})
}

// describe builds the status document shared by description and
// healthcheck; healthcheck adds a formatted start_datetime and a
// process sample on top.
func (r *Runtime) describe() map[string]any {
	snap := r.stats.snapshot()
	functionNames := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		functionNames = append(functionNames, name)
	}
	return map[string]any{
		"name":           r.Name,
		"env":            r.Env,
		"guid":           r.GUID,
		"pid":            r.PID,
		"host":           r.Host,
		"port":           r.Port,
		"socket_type":    string(r.SocketType),
		"connect_method": string(r.ConnectMethod),
		"functions":      functionNames,
		"start_time":     r.StartTime,
		"function_deck":  snap.FunctionDeck,
		"stats":          snap,
	}
}
