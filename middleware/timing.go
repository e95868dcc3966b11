package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/loomkit/loom"
)

// Timing adds execution timing to a node, recording metrics into shared
// state under node:<name>:* keys.
//
// The teacher's Timing wraps Prep/Exec/Post separately and threads a
// timingData value through them via boxed map[string]interface{} values,
// because that's the only channel pocket.Node's three-phase interface
// gives a decorator. loom.Node has one phase, so the whole relay is
// unnecessary: Timing just brackets the single Visit call.
func Timing() Middleware {
	return func(node loom.Node) loom.Node {
		return &middlewareNode{
			Node: node,
			name: node.Name(),
			visit: func(ctx context.Context, shared *loom.SharedState) (string, error) {
				td := loadTimingData(shared, node.Name())

				start := time.Now()
				action, err := node.Visit(ctx, shared)
				duration := time.Since(start)

				td.totalDuration += duration
				td.execCount++
				saveTimingData(shared, node.Name(), duration, td)

				return action, err
			},
		}
	}
}

// timingData holds accumulated timing metrics for a node.
type timingData struct {
	totalDuration time.Duration
	execCount     int64
}

func loadTimingData(shared *loom.SharedState, nodeName string) timingData {
	var td timingData
	if v, ok := shared.Get(fmt.Sprintf("node:%s:total_duration", nodeName)); ok {
		if d, ok := v.(time.Duration); ok {
			td.totalDuration = d
		}
	}
	if v, ok := shared.Get(fmt.Sprintf("node:%s:execution_count", nodeName)); ok {
		if c, ok := v.(int64); ok {
			td.execCount = c
		}
	}
	return td
}

func saveTimingData(shared *loom.SharedState, nodeName string, duration time.Duration, td timingData) {
	shared.Set(fmt.Sprintf("node:%s:last_duration", nodeName), duration)
	shared.Set(fmt.Sprintf("node:%s:total_duration", nodeName), td.totalDuration)
	shared.Set(fmt.Sprintf("node:%s:execution_count", nodeName), td.execCount)
	if td.execCount > 0 {
		shared.Set(fmt.Sprintf("node:%s:avg_duration", nodeName), td.totalDuration/time.Duration(td.execCount))
	}
}
